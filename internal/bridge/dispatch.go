package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
	"github.com/kimhsiao/pawtrail/core/internal/models"
	"github.com/kimhsiao/pawtrail/core/internal/recovery"
)

// Method names accepted by Dispatch.
const (
	MethodStartWalk       = "walk.start"
	MethodRecordLocation  = "walk.location"
	MethodRecordEvent     = "walk.event"
	MethodPause           = "walk.pause"
	MethodResume          = "walk.resume"
	MethodFinishWalk      = "walk.finish"
	MethodCurrentWalk     = "walk.current"
	MethodSyncNow         = "sync.now"
	MethodPendingCount    = "sync.pending"
	MethodSyncStatus      = "sync.status"
	MethodCheckCrashed    = "recovery.check"
	MethodResolveCrashed  = "recovery.resolve"
	MethodSetConnectivity = "network.set"
)

// Response is the envelope every Dispatch call returns.
type Response struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries an error code the app can branch on.
type ErrorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

type startWalkRequest struct {
	DogID  string `json:"dogId"`
	UserID string `json:"userId"`
}

type recordEventRequest struct {
	EventType models.EventType `json:"eventType"`
}

type checkCrashedRequest struct {
	Auth string `json:"auth"`
}

type resolveCrashedRequest struct {
	Decision recovery.Decision `json:"decision"`
}

type connectivityRequest struct {
	Connected bool `json:"connected"`
}

type pendingResponse struct {
	Pending int `json:"pending"`
}

type eventResponse struct {
	Event   *models.WalkEvent `json:"event"`
	Dropped bool              `json:"dropped"`
}

// Dispatch decodes payload for method, calls the matching Core operation
// and encodes the outcome as a Response.
func (c *Core) Dispatch(ctx context.Context, method string, payload []byte) []byte {
	data, err := c.dispatch(ctx, method, payload)
	resp := Response{OK: err == nil, Data: data}
	if err != nil {
		resp.Data = nil
		resp.Error = &ErrorBody{Code: errors.CodeOf(err), Message: err.Error()}
		c.log.Debug("bridge call failed", zap.String("method", method), zap.Error(err))
	}
	out, merr := json.Marshal(resp)
	if merr != nil {
		c.log.Error("encode bridge response", zap.String("method", method), zap.Error(merr))
		return []byte(`{"ok":false,"error":{"code":"INTERNAL_ERROR","message":"encode response"}}`)
	}
	return out
}

func (c *Core) dispatch(ctx context.Context, method string, payload []byte) (any, error) {
	switch method {
	case MethodStartWalk:
		var req startWalkRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return c.StartWalk(ctx, req.DogID, req.UserID)

	case MethodRecordLocation:
		var coord models.Coordinate
		if err := decode(payload, &coord); err != nil {
			return nil, err
		}
		return nil, c.RecordLocation(coord)

	case MethodRecordEvent:
		var req recordEventRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		event, err := c.RecordEvent(req.EventType)
		if err != nil {
			return nil, err
		}
		return eventResponse{Event: event, Dropped: event == nil}, nil

	case MethodPause:
		return nil, c.Pause()

	case MethodResume:
		return nil, c.Resume()

	case MethodFinishWalk:
		return c.FinishWalk(ctx)

	case MethodCurrentWalk:
		return c.CurrentWalk(), nil

	case MethodSyncNow:
		return c.SyncNow(ctx), nil

	case MethodPendingCount:
		return pendingResponse{Pending: c.PendingCount(ctx)}, nil

	case MethodSyncStatus:
		return c.Scheduler.Status(ctx), nil

	case MethodCheckCrashed:
		var req checkCrashedRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		auth, err := ParseAuthState(req.Auth)
		if err != nil {
			return nil, err
		}
		return c.CheckCrashedWalk(ctx, auth)

	case MethodResolveCrashed:
		var req resolveCrashedRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return c.ResolveCrashedWalk(ctx, req.Decision)

	case MethodSetConnectivity:
		var req connectivityRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		c.SetConnectivity(req.Connected)
		return nil, nil

	default:
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("unknown method %q", method))
	}
}

// ParseAuthState maps the app's auth label to a recovery.AuthState.
func ParseAuthState(s string) (recovery.AuthState, error) {
	switch s {
	case "", "unknown":
		return recovery.AuthUnknown, nil
	case "loggedOut":
		return recovery.AuthLoggedOut, nil
	case "loggedIn":
		return recovery.AuthLoggedIn, nil
	}
	return recovery.AuthUnknown, errors.New(errors.ErrInvalid, fmt.Sprintf("unknown auth state %q", s))
}

func decode(payload []byte, v any) error {
	if len(payload) == 0 {
		return errors.New(errors.ErrInvalid, "missing payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Wrap(errors.ErrInvalid, "decode payload", err)
	}
	return nil
}
