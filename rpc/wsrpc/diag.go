package wsrpc

import (
	"encoding/json"
	"net/http"

	"github.com/arloliu/go-motor/rpc"
)

// Diagnostic methods served on /diag.
const (
	DiagStatus      = "status"
	DiagInvalidate  = "invalidate"
	DiagStepCounter = "step_counter"
	DiagState       = "state"
	DiagMetrics     = "metrics"
	DiagExtensions  = "extensions"
	DiagExec        = "exec"
	DiagSnapshot    = "snapshot"
)

type statusParams struct {
	Fresh bool `json:"fresh"`
}

type execParams struct {
	Name string    `json:"name"`
	Args []float64 `json:"args"`
}

type snapshotParams struct {
	Prefix string `json:"prefix"`
}

func (s *Server) serveDiag(w http.ResponseWriter, r *http.Request) {
	if s.diag == nil {
		http.NotFound(w, r)
		return
	}

	c := s.accept(w, r, kindDiag)
	if c == nil {
		return
	}
	defer s.release(c)

	c.readPump(func(data []byte) {
		var req rpc.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.send(s.encode(rpc.Failure(req, rpc.Errorf(rpc.CodeBadParams, "malformed request: %v", err))))
			return
		}

		result, err := s.diagnose(req)
		if err != nil {
			c.send(s.encode(rpc.Failure(req, err)))
			return
		}
		c.send(s.encode(rpc.Result(req, result)))
	})
}

func (s *Server) diagnose(req rpc.Request) (any, error) {
	switch req.Method {
	case DiagStatus:
		var p statusParams
		if len(req.Params) > 0 {
			if err := req.Bind(&p); err != nil {
				return nil, err
			}
		}
		return s.diag.Status(p.Fresh)

	case DiagInvalidate:
		s.diag.Invalidate()
		return true, nil

	case DiagStepCounter:
		return s.diag.StepCounter(), nil

	case DiagState:
		return s.diag.State(), nil

	case DiagMetrics:
		m := s.diag.Metrics()
		m["ws.clients"] = uint64(s.Clients())
		m["ws.dropped"] = s.Dropped()
		return m, nil

	case DiagExtensions:
		return s.diag.Extensions(), nil

	case DiagExec:
		var p execParams
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, rpc.Errorf(rpc.CodeBadParams, "extension name required")
		}
		return s.diag.Exec(p.Name, p.Args)

	case DiagSnapshot:
		var p snapshotParams
		if len(req.Params) > 0 {
			if err := req.Bind(&p); err != nil {
				return nil, err
			}
		}
		if p.Prefix == "" {
			p.Prefix = "motor"
		}
		return s.diag.Snapshot(p.Prefix), nil

	default:
		return nil, rpc.Errorf(rpc.CodeUnknownMethod, "unknown diagnostic method %q", req.Method)
	}
}
