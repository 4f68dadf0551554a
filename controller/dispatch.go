package controller

import (
	"github.com/arloliu/go-motor/rpc"
)

// Request methods.
const (
	MethodName        = "name"
	MethodNAxes       = "naxes"
	MethodPosition    = "position"
	MethodMoveTo      = "move_to"
	MethodMoveBy      = "move_by"
	MethodHome        = "home"
	MethodStop        = "stop"
	MethodStatus      = "status"
	MethodStepCounter = "step_counter"
	MethodServerInfo  = "server_info"
	MethodTerminate   = "terminate"
)

type axisParams struct {
	Axis int `json:"axis"`
}

type moveToParams struct {
	Axis     int     `json:"axis"`
	Position float64 `json:"position"`
}

type moveByParams struct {
	Axis  int     `json:"axis"`
	Delta float64 `json:"delta"`
}

// handle serves one request drained by Step.
func (c *MotorController) handle(req rpc.Request) rpc.Reply {
	c.metrics.RequestCount.Add(1)

	result, err := c.dispatch(req)
	if err != nil {
		c.metrics.RequestErrCount.Add(1)
		c.logger.Debug("request failed", "id", req.ID, "method", req.Method, "error", err)

		return rpc.Failure(req, err)
	}

	return rpc.Result(req, result)
}

func (c *MotorController) dispatch(req rpc.Request) (any, error) {
	switch req.Method {
	case MethodName:
		return c.Name(), nil
	case MethodNAxes:
		return c.NAxes(), nil
	case MethodStepCounter:
		return c.StepCounter(), nil
	case MethodServerInfo:
		return c.ServerInfo(), nil

	case MethodPosition:
		var p axisParams
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		return c.Position(p.Axis)

	case MethodMoveTo:
		var p moveToParams
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		return nil, c.MoveTo(p.Axis, p.Position)

	case MethodMoveBy:
		var p moveByParams
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		return nil, c.MoveBy(p.Axis, p.Delta)

	case MethodHome:
		var p axisParams
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		return nil, c.Home(p.Axis)

	case MethodStop:
		var p axisParams
		if err := req.Bind(&p); err != nil {
			return nil, err
		}
		return nil, c.Stop(p.Axis)

	case MethodStatus:
		return c.Status()

	case MethodTerminate:
		c.Terminate()
		return nil, nil
	}

	return nil, rpc.Errorf(rpc.CodeUnknownMethod, "unknown method %q", req.Method)
}
