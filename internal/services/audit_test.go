package services_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/virtops/brokeradm/internal/models"
	"github.com/virtops/brokeradm/internal/services"
)

type fakeSink struct {
	startErr  error
	closeErr  error
	started   []models.AuditOperation
	closed    []string
	succeeded []bool
}

func (s *fakeSink) StartAuditOperation(ctx context.Context, op models.AuditOperation) (string, error) {
	if s.startErr != nil {
		return "", s.startErr
	}
	s.started = append(s.started, op)
	return fmt.Sprintf("op-%d", len(s.started)), nil
}

func (s *fakeSink) StopAuditOperation(ctx context.Context, operationID string, succeeded bool) error {
	s.closed = append(s.closed, operationID)
	s.succeeded = append(s.succeeded, succeeded)
	return s.closeErr
}

var _ = Describe("Auditor", func() {
	var (
		ctx     context.Context
		sink    *fakeSink
		auditor *services.Auditor
	)

	BeforeEach(func() {
		ctx = context.Background()
		sink = &fakeSink{}
		auditor = services.NewAuditor(sink, "brokeradm-test")
	})

	It("should run the action with the operation id and close on success", func() {
		var seenID string
		err := auditor.Around(ctx, "Delete resource connection", models.OperationTypeConfigurationChange,
			[]string{"u1"}, func(ctx context.Context, loggingID string) error {
				seenID = loggingID
				return nil
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(seenID).To(Equal("op-1"))
		Expect(sink.started[0].Source).To(Equal("brokeradm-test"))
		Expect(sink.closed).To(Equal([]string{"op-1"}))
		Expect(sink.succeeded).To(Equal([]bool{true}))
	})

	// An unopenable audit operation makes the whole action fail: the
	// mutation must not run unrecorded.
	It("should not run the action when the operation cannot be opened", func() {
		sink.startErr = fmt.Errorf("logging subsystem down")
		ran := false
		err := auditor.Around(ctx, "Stop task", models.OperationTypeAdminActivity,
			[]string{"t1"}, func(ctx context.Context, loggingID string) error {
				ran = true
				return nil
			})
		Expect(err).To(HaveOccurred())
		Expect(ran).To(BeFalse())
		Expect(sink.closed).To(BeEmpty())
	})

	It("should close the operation as failed when the action fails", func() {
		err := auditor.Around(ctx, "Stop task", models.OperationTypeAdminActivity,
			[]string{"t1"}, func(ctx context.Context, loggingID string) error {
				return fmt.Errorf("stop failed")
			})
		Expect(err).To(HaveOccurred())
		Expect(sink.succeeded).To(Equal([]bool{false}))
	})

	It("should close the operation even when the action panics", func() {
		Expect(func() {
			_ = auditor.Around(ctx, "Stop task", models.OperationTypeAdminActivity,
				[]string{"t1"}, func(ctx context.Context, loggingID string) error {
					panic("boom")
				})
		}).To(PanicWith("boom"))
		Expect(sink.closed).To(Equal([]string{"op-1"}))
		Expect(sink.succeeded).To(Equal([]bool{false}))
	})

	// A failed close is logged, never surfaced.
	It("should not surface a close failure", func() {
		sink.closeErr = fmt.Errorf("close failed")
		err := auditor.Around(ctx, "Stop task", models.OperationTypeAdminActivity,
			[]string{"t1"}, func(ctx context.Context, loggingID string) error {
				return nil
			})
		Expect(err).NotTo(HaveOccurred())
	})
})
