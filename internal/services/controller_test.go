package services

import (
	"context"
	"fmt"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/virtops/brokeradm/internal/models"
	srvErrors "github.com/virtops/brokeradm/pkg/errors"
)

type stubHealth struct {
	info models.ControllerInfo
	err  error
}

func (h stubHealth) About(ctx context.Context) (models.ControllerInfo, error) {
	return h.info, h.err
}

var _ = Describe("ControllerValidator", func() {
	var (
		ctx       context.Context
		validator *ControllerValidator
		health    stubHealth
		queried   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		health = stubHealth{info: models.ControllerInfo{MachineName: "ddc01", Role: "Controller", Version: "7.0"}}
		validator = NewControllerValidator(80, 2, time.Millisecond, func(host string) HealthQuerier {
			queried = host
			return health
		})
		queried = ""
	})

	Context("with an IP address", func() {
		// Given an IP whose reverse lookup fails
		// When the validator runs
		// Then the whole procedure is terminated
		It("should fail when reverse resolution yields nothing", func() {
			validator.lookupAddr = func(addr string) ([]string, error) {
				return nil, fmt.Errorf("no PTR record")
			}
			_, err := validator.Validate(ctx, "192.0.2.10")
			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsPreconditionError(err)).To(BeTrue())
		})

		It("should resolve the IP to a host name and validate it", func() {
			validator.lookupAddr = func(addr string) ([]string, error) {
				Expect(addr).To(Equal("192.0.2.10"))
				return []string{"ddc01.example.test."}, nil
			}
			host, err := validator.Validate(ctx, "192.0.2.10")
			Expect(err).NotTo(HaveOccurred())
			Expect(host).To(Equal("ddc01.example.test"))
			Expect(queried).To(Equal("ddc01.example.test"))
		})
	})

	Context("with the local-host token", func() {
		It("should substitute the machine's own host name", func() {
			validator.hostname = func() (string, error) { return "this-machine", nil }
			host, err := validator.Validate(ctx, "LocalHost")
			Expect(err).NotTo(HaveOccurred())
			Expect(host).To(Equal("this-machine"))
		})
	})

	Context("with a DNS name", func() {
		It("should fail after exhausting the reachability probe", func() {
			attempts := 0
			validator.dial = func(network, address string, timeout time.Duration) (net.Conn, error) {
				attempts++
				return nil, fmt.Errorf("connection refused")
			}
			_, err := validator.Validate(ctx, "ddc01.example.test")
			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsPreconditionError(err)).To(BeTrue())
			Expect(attempts).To(Equal(2))
		})

		It("should proceed once the probe succeeds", func() {
			probe, controller := net.Pipe()
			defer controller.Close()
			validator.dial = func(network, address string, timeout time.Duration) (net.Conn, error) {
				Expect(address).To(Equal("ddc01.example.test:80"))
				return probe, nil
			}
			host, err := validator.Validate(ctx, "ddc01.example.test")
			Expect(err).NotTo(HaveOccurred())
			Expect(host).To(Equal("ddc01.example.test"))
		})
	})

	Context("health query", func() {
		BeforeEach(func() {
			validator.hostname = func() (string, error) { return "this-machine", nil }
		})

		It("should fail when the host does not report the Controller role", func() {
			health = stubHealth{info: models.ControllerInfo{MachineName: "member01", Role: "Member"}}
			_, err := validator.Validate(ctx, "localhost")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("not a management controller"))
		})

		It("should fail when the health query errors", func() {
			health = stubHealth{err: fmt.Errorf("connection reset")}
			_, err := validator.Validate(ctx, "localhost")
			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsPreconditionError(err)).To(BeTrue())
		})
	})
})
