// Package brokertest provides a scriptable in-process management controller
// for tests. It implements the same capability surface the real broker
// exposes, records every mutating call in order, and can be told to fail
// specific operations.
package brokertest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/virtops/brokeradm/internal/models"
)

// AuditRecord is one open/closed audit operation as seen by the fake broker.
type AuditRecord struct {
	ID        string
	Text      string
	Source    string
	Type      string
	TargetIDs []string
	Closed    bool
	Succeeded bool
}

// Server is the scriptable fake controller.
type Server struct {
	mu sync.Mutex

	Info        models.ControllerInfo
	Connections []models.HostingConnection
	// Units maps a connection name to its resource units; Tasks maps a unit
	// uid to its provisioning tasks (the first active one is surfaced).
	Units  map[string][]models.ResourceUnit
	Tasks  map[string][]models.ProvisioningTask
	Audits map[string]*AuditRecord

	// Failure switches.
	FailTaskQuery  bool
	FailStopTasks  map[string]bool
	FailRemoveTask map[string]bool
	FailDeleteUnit map[string]bool

	// Calls records every mutating call in order, e.g. "stop-task t1",
	// "delete-unit u1", "delete-hosting conn", "delete-hypervisor conn".
	Calls []string

	httpServer *httptest.Server
}

// New starts a fake controller reporting the Controller role.
func New() *Server {
	s := &Server{
		Info:           models.ControllerInfo{MachineName: "fake-ddc", Role: "Controller", Version: "7.0"},
		Units:          map[string][]models.ResourceUnit{},
		Tasks:          map[string][]models.ProvisioningTask{},
		Audits:         map[string]*AuditRecord{},
		FailStopTasks:  map[string]bool{},
		FailRemoveTask: map[string]bool{},
		FailDeleteUnit: map[string]bool{},
	}
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ginzap.Ginzap(zap.NewNop(), time.RFC3339, false))
	s.routes(engine)
	s.httpServer = httptest.NewServer(engine)
	return s
}

// URL is the base URL of the fake controller.
func (s *Server) URL() string { return s.httpServer.URL }

func (s *Server) Close() { s.httpServer.Close() }

// MutatingCalls returns the ordered mutating calls recorded so far.
func (s *Server) MutatingCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls := make([]string, len(s.Calls))
	copy(calls, s.Calls)
	return calls
}

// OpenAudits returns audit records that were never closed.
func (s *Server) OpenAudits() []AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []AuditRecord
	for _, a := range s.Audits {
		if !a.Closed {
			open = append(open, *a)
		}
	}
	return open
}

func (s *Server) record(call string) {
	s.Calls = append(s.Calls, call)
}

func (s *Server) routes(e *gin.Engine) {
	e.GET("/about", s.about)
	e.GET("/hosting", s.listHosting)
	e.GET("/hosting/:name/resources", s.listResources)
	e.GET("/resources/:uid/tasks", s.activeTask)
	e.POST("/tasks/:id/stop", s.stopTask)
	e.DELETE("/tasks/:id", s.removeTask)
	e.DELETE("/resources/:uid", s.deleteResource)
	e.DELETE("/hosting/:name", s.deleteHosting)
	e.DELETE("/hypervisors/:name", s.deleteHypervisor)
	e.POST("/logging/operations", s.startAudit)
	e.POST("/logging/operations/:id/stop", s.stopAudit)
}

func (s *Server) about(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"machineName": s.Info.MachineName,
		"role":        s.Info.Role,
		"version":     s.Info.Version,
	})
}

func (s *Server) listHosting(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gin.H, 0, len(s.Connections))
	for _, conn := range s.Connections {
		out = append(out, gin.H{"name": conn.Name, "path": conn.Path})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listResources(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	units := s.Units[c.Param("name")]
	out := make([]gin.H, 0, len(units))
	for _, u := range units {
		out = append(out, gin.H{"hostingUnitUid": u.HostingUnitUID, "name": u.Name, "path": u.Path})
	}
	c.JSON(http.StatusOK, out)
}

// activeTask surfaces at most one active task per call, matching the real
// backend's query semantics.
func (s *Server) activeTask(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTaskQuery {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "task query failed"})
		return
	}
	for _, t := range s.Tasks[c.Param("uid")] {
		if t.Active {
			c.JSON(http.StatusOK, gin.H{
				"taskId":         t.TaskID,
				"hostingUnitUid": t.HostingUnitUID,
				"active":         t.Active,
				"type":           t.Type,
			})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) stopTask(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	s.record("stop-task " + id)
	if s.FailStopTasks[id] {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stop failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeTask(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	s.record("remove-task " + id)
	if s.FailRemoveTask[id] {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove failed"})
		return
	}
	for uid, tasks := range s.Tasks {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.TaskID != id {
				kept = append(kept, t)
			}
		}
		s.Tasks[uid] = kept
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteResource(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := c.Param("uid")
	s.record("delete-unit " + uid)
	if s.FailDeleteUnit[uid] {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	for name, units := range s.Units {
		kept := units[:0]
		for _, u := range units {
			if u.HostingUnitUID != uid {
				kept = append(kept, u)
			}
		}
		s.Units[name] = kept
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteHosting(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := c.Param("name")
	s.record("delete-hosting " + name)
	kept := s.Connections[:0]
	for _, conn := range s.Connections {
		if conn.Name != name {
			kept = append(kept, conn)
		}
	}
	s.Connections = kept
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteHypervisor(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete-hypervisor " + c.Param("name"))
	c.Status(http.StatusNoContent)
}

func (s *Server) startAudit(c *gin.Context) {
	var body struct {
		Text      string   `json:"text"`
		Source    string   `json:"source"`
		Type      string   `json:"operationType"`
		TargetIDs []string `json:"targetIds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.Audits[id] = &AuditRecord{
		ID:        id,
		Text:      body.Text,
		Source:    body.Source,
		Type:      body.Type,
		TargetIDs: body.TargetIDs,
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) stopAudit(c *gin.Context) {
	var body struct {
		Succeeded bool `json:"isSuccessful"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.Audits[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown operation"})
		return
	}
	rec.Closed = true
	rec.Succeeded = body.Succeeded
	c.Status(http.StatusNoContent)
}
