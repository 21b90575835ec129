package services

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/virtops/brokeradm/internal/models"
	srvErrors "github.com/virtops/brokeradm/pkg/errors"
)

const localHostToken = "localhost"

// HealthQuerier answers the controller health query for a resolved host.
type HealthQuerier interface {
	About(ctx context.Context) (models.ControllerInfo, error)
}

// ControllerValidator resolves an operator-supplied host identifier (IP,
// local-host token or DNS name) to a host name and confirms the host is a
// reachable management controller. Any negative result is fatal.
type ControllerValidator struct {
	port          int
	probeAttempts uint
	probeInterval time.Duration
	log           *zap.SugaredLogger

	// Injected for tests.
	lookupAddr func(addr string) ([]string, error)
	hostname   func() (string, error)
	dial       func(network, address string, timeout time.Duration) (net.Conn, error)
	healthFor  func(host string) HealthQuerier
}

func NewControllerValidator(port int, probeAttempts int, probeInterval time.Duration, healthFor func(host string) HealthQuerier) *ControllerValidator {
	return &ControllerValidator{
		port:          port,
		probeAttempts: uint(probeAttempts),
		probeInterval: probeInterval,
		log:           zap.S().Named("controller_validator"),
		lookupAddr:    net.LookupAddr,
		hostname:      os.Hostname,
		dial:          net.DialTimeout,
		healthFor:     healthFor,
	}
}

// Validate returns the resolved controller host name, or a precondition
// error that terminates the procedure.
func (v *ControllerValidator) Validate(ctx context.Context, adminAddress string) (string, error) {
	host := adminAddress

	switch {
	case net.ParseIP(adminAddress) != nil:
		names, err := v.lookupAddr(adminAddress)
		if err != nil || len(names) == 0 {
			return "", srvErrors.NewAddressResolutionError(adminAddress, err)
		}
		host = strings.TrimSuffix(names[0], ".")
		v.log.Infow("resolved admin address", "ip", adminAddress, "host", host)

	case strings.EqualFold(adminAddress, localHostToken):
		name, err := v.hostname()
		if err != nil {
			return "", srvErrors.NewAddressResolutionError(adminAddress, err)
		}
		host = name
		v.log.Infow("substituted local host name", "host", host)

	default:
		if err := v.probe(ctx, host); err != nil {
			return "", srvErrors.NewControllerUnreachableError(host, err)
		}
	}

	info, err := v.healthFor(host).About(ctx)
	if err != nil {
		return "", srvErrors.NewControllerUnreachableError(host, err)
	}
	if !info.IsController() {
		return "", srvErrors.NewNotAControllerError(host)
	}
	v.log.Infow("validated controller", "host", host, "version", info.Version)
	return host, nil
}

func (v *ControllerValidator) probe(ctx context.Context, host string) error {
	address := fmt.Sprintf("%s:%d", host, v.port)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		conn, err := v.dial("tcp", address, v.probeInterval)
		if err != nil {
			return struct{}{}, err
		}
		conn.Close()
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(v.probeInterval)),
		backoff.WithMaxTries(v.probeAttempts),
	)
	return err
}
