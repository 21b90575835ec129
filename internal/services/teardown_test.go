package services_test

import (
	"context"
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/virtops/brokeradm/internal/action"
	"github.com/virtops/brokeradm/internal/models"
	"github.com/virtops/brokeradm/internal/services"
	"github.com/virtops/brokeradm/pkg/broker"
	"github.com/virtops/brokeradm/pkg/broker/brokertest"
	srvErrors "github.com/virtops/brokeradm/pkg/errors"
)

func TestServices(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Services Suite")
}

// memJournal captures journaled entries for assertions.
type memJournal struct {
	mu      sync.Mutex
	entries []models.JournalEntry
}

func (j *memJournal) Record(ctx context.Context, entry models.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memJournal) byStep(step string) []models.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []models.JournalEntry
	for _, e := range j.entries {
		if e.Step == step {
			out = append(out, e)
		}
	}
	return out
}

var _ = Describe("TeardownService", func() {
	var (
		ctx     context.Context
		server  *brokertest.Server
		client  *broker.Client
		journal *memJournal
	)

	unit := func(uid, name string) models.ResourceUnit {
		return models.ResourceUnit{HostingUnitUID: uid, Name: name, Path: "XDHyp:\\" + name, ConnectionName: "conn1"}
	}
	task := func(id, uid string) models.ProvisioningTask {
		return models.ProvisioningTask{TaskID: id, HostingUnitUID: uid, Active: true, Type: "CreateCatalog"}
	}

	newService := func(executor *action.Executor) *services.TeardownService {
		auditor := services.NewAuditor(client, "brokeradm-test")
		return services.NewTeardownService(client, auditor, executor, journal, "run-1")
	}

	BeforeEach(func() {
		ctx = context.Background()
		server = brokertest.New()
		server.Connections = []models.HostingConnection{{Name: "conn1", Path: "XDHyp:\\Connections\\conn1"}}
		client = broker.NewClient(server.URL())
		journal = &memJournal{}
	})

	AfterEach(func() {
		server.Close()
	})

	Context("draining provisioning tasks", func() {
		// Given a unit with two active tasks, surfaced one per query
		// When the teardown runs
		// Then each task gets exactly one stop and one remove, in order
		It("should stop and remove every task discovered by re-querying", func() {
			server.Units["conn1"] = []models.ResourceUnit{unit("u1", "Primary")}
			server.Tasks["u1"] = []models.ProvisioningTask{task("t1", "u1"), task("t2", "u1")}

			svc := newService(action.NewExecutor(false, false, nil))
			Expect(svc.Teardown(ctx, "conn1", false)).To(Succeed())

			Expect(server.MutatingCalls()).To(Equal([]string{
				"stop-task t1",
				"remove-task t1",
				"stop-task t2",
				"remove-task t2",
				"delete-unit u1",
				"delete-hosting conn1",
				"delete-hypervisor conn1",
			}))
		})

		// Every mutating step opens an audit operation and closes it.
		It("should close every audit operation it opens", func() {
			server.Units["conn1"] = []models.ResourceUnit{unit("u1", "Primary")}
			server.Tasks["u1"] = []models.ProvisioningTask{task("t1", "u1")}

			svc := newService(action.NewExecutor(false, false, nil))
			Expect(svc.Teardown(ctx, "conn1", false)).To(Succeed())

			// stop + remove + delete-unit + delete-hosting + delete-hypervisor
			Expect(server.Audits).To(HaveLen(5))
			Expect(server.OpenAudits()).To(BeEmpty())
			for _, rec := range server.Audits {
				Expect(rec.Succeeded).To(BeTrue())
				Expect(rec.Source).To(Equal("brokeradm-test"))
			}
		})

		// Given a failing active-task query
		// When the teardown runs
		// Then it aborts before deleting anything
		It("should abort without deletions when the task query fails", func() {
			server.Units["conn1"] = []models.ResourceUnit{unit("u1", "Primary")}
			server.FailTaskQuery = true

			svc := newService(action.NewExecutor(false, false, nil))
			err := svc.Teardown(ctx, "conn1", false)
			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsQueryError(err)).To(BeTrue())
			Expect(server.MutatingCalls()).To(BeEmpty())
		})

		// A failed stop does not block the removal attempt, and its audit
		// operation is closed as unsuccessful.
		It("should attempt removal even when the stop fails", func() {
			server.Units["conn1"] = []models.ResourceUnit{unit("u1", "Primary")}
			server.Tasks["u1"] = []models.ProvisioningTask{task("t1", "u1")}
			server.FailStopTasks["t1"] = true

			svc := newService(action.NewExecutor(false, false, nil))
			Expect(svc.Teardown(ctx, "conn1", false)).To(Succeed())

			Expect(server.MutatingCalls()).To(ContainElement("remove-task t1"))
			Expect(server.OpenAudits()).To(BeEmpty())

			var stopAudit *brokertest.AuditRecord
			for _, rec := range server.Audits {
				if rec.Text == `Stop provisioning task "t1"` {
					stopAudit = rec
				}
			}
			Expect(stopAudit).NotTo(BeNil())
			Expect(stopAudit.Succeeded).To(BeFalse())

			failed := journal.byStep("stop-task")
			Expect(failed).To(HaveLen(1))
			Expect(failed[0].Outcome).To(Equal(models.OutcomeFailed))
			Expect(failed[0].Error).To(ContainSubstring(`stop-task failed for "t1"`))
		})
	})

	Context("full teardown", func() {
		// Given three idle resource units
		// When the teardown runs
		// Then all units are deleted before the hosting and hypervisor objects
		It("should delete units, then the hosting connection, then the hypervisor connection", func() {
			server.Units["conn1"] = []models.ResourceUnit{
				unit("u1", "Primary"), unit("u2", "Secondary"), unit("u3", "Tertiary"),
			}

			svc := newService(action.NewExecutor(false, false, nil))
			Expect(svc.Teardown(ctx, "conn1", false)).To(Succeed())

			Expect(server.MutatingCalls()).To(Equal([]string{
				"delete-unit u1",
				"delete-unit u2",
				"delete-unit u3",
				"delete-hosting conn1",
				"delete-hypervisor conn1",
			}))
		})

		It("should journal one executed entry per mutating step", func() {
			server.Units["conn1"] = []models.ResourceUnit{unit("u1", "Primary")}

			svc := newService(action.NewExecutor(false, false, nil))
			Expect(svc.Teardown(ctx, "conn1", false)).To(Succeed())

			Expect(journal.byStep("delete-resource-unit")).To(HaveLen(1))
			Expect(journal.byStep("delete-hosting-connection")).To(HaveLen(1))
			Expect(journal.byStep("delete-hypervisor-connection")).To(HaveLen(1))
			for _, e := range journal.entries {
				Expect(e.RunID).To(Equal("run-1"))
				Expect(e.Outcome).To(Equal(models.OutcomeExecuted))
			}
		})

		// A delete failure is recovered locally: the run continues and the
		// remaining objects are still deleted.
		It("should continue past a failed resource unit deletion", func() {
			server.Units["conn1"] = []models.ResourceUnit{unit("u1", "Primary"), unit("u2", "Secondary")}
			server.FailDeleteUnit["u1"] = true

			svc := newService(action.NewExecutor(false, false, nil))
			Expect(svc.Teardown(ctx, "conn1", false)).To(Succeed())

			Expect(server.MutatingCalls()).To(Equal([]string{
				"delete-unit u1",
				"delete-unit u2",
				"delete-hosting conn1",
				"delete-hypervisor conn1",
			}))
		})
	})

	Context("resource-only teardown", func() {
		// Given one unit with an active task and one idle unit
		// When the resource-only teardown runs
		// Then only the flagged unit is deleted and the connections survive
		It("should delete only the units that had an active task", func() {
			server.Units["conn1"] = []models.ResourceUnit{unit("u1", "Primary"), unit("u2", "Secondary")}
			server.Tasks["u1"] = []models.ProvisioningTask{task("t1", "u1")}

			svc := newService(action.NewExecutor(false, false, nil))
			Expect(svc.Teardown(ctx, "conn1", true)).To(Succeed())

			calls := server.MutatingCalls()
			Expect(calls).To(ContainElement("delete-unit u1"))
			Expect(calls).NotTo(ContainElement("delete-unit u2"))
			Expect(calls).NotTo(ContainElement("delete-hosting conn1"))
			Expect(calls).NotTo(ContainElement("delete-hypervisor conn1"))
		})

		It("should delete nothing when no unit had an active task", func() {
			server.Units["conn1"] = []models.ResourceUnit{unit("u1", "Primary")}

			svc := newService(action.NewExecutor(false, false, nil))
			Expect(svc.Teardown(ctx, "conn1", true)).To(Succeed())
			Expect(server.MutatingCalls()).To(BeEmpty())
		})
	})

	Context("connection selection", func() {
		It("should fail on an unknown connection name without mutating anything", func() {
			svc := newService(action.NewExecutor(false, false, nil))
			err := svc.Teardown(ctx, "no-such-connection", false)
			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsPreconditionError(err)).To(BeTrue())
			Expect(server.MutatingCalls()).To(BeEmpty())
			Expect(server.Audits).To(BeEmpty())
		})
	})

	Context("dry run", func() {
		// A dry run performs no mutation and opens no audit operation. The
		// drain loop cannot make progress against the same re-query, so it
		// stops instead of spinning.
		It("should terminate without mutating or auditing", func() {
			server.Units["conn1"] = []models.ResourceUnit{unit("u1", "Primary")}
			server.Tasks["u1"] = []models.ProvisioningTask{task("t1", "u1")}

			svc := newService(action.NewExecutor(true, false, nil))
			Expect(svc.Teardown(ctx, "conn1", false)).To(Succeed())

			Expect(server.MutatingCalls()).To(BeEmpty())
			Expect(server.Audits).To(BeEmpty())
			for _, e := range journal.entries {
				Expect(e.Outcome).To(Equal(models.OutcomeSkipped))
			}
		})
	})
})
