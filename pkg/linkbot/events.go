package linkbot

import (
	"fmt"
	"sync"

	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

// Event handler types. Each receives the decoded payload, which carries the
// device-clock timestamp.
type (
	AccelerometerHandler func(ev protocol.AccelerometerEvent)
	ButtonHandler        func(ev protocol.ButtonEvent)
	JointHandler         func(ev protocol.JointEvent)
	ConnectHandler       func(ev protocol.ConnectEvent)
)

// handlerSlot holds one handler. gen counts every change to it.
type handlerSlot[H any] struct {
	h   H
	gen uint64
}

// eventRegistry holds at most one handler per event kind for one robot.
type eventRegistry struct {
	mu            sync.RWMutex
	accelerometer handlerSlot[AccelerometerHandler]
	button        handlerSlot[ButtonHandler]
	joint         handlerSlot[JointHandler]
	connect       handlerSlot[ConnectHandler]
}

// swapHandler installs h in s and returns the handler it replaced along with
// the slot's new generation.
func swapHandler[H any](e *eventRegistry, s *handlerSlot[H], h H) (H, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := s.h
	s.h = h
	s.gen++
	return prev, s.gen
}

// restoreHandler puts prev back only if s is still at generation gen, so a
// handler installed in the meantime survives. It reports whether it restored.
func restoreHandler[H any](e *eventRegistry, s *handlerSlot[H], prev H, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.gen != gen {
		return false
	}
	s.h = prev
	s.gen++
	return true
}

func (e *eventRegistry) setConnect(h ConnectHandler) {
	swapHandler(e, &e.connect, h)
}

// fireConnect invokes the connect handler, if any.
func (e *eventRegistry) fireConnect(ev protocol.ConnectEvent) bool {
	e.mu.RLock()
	h := e.connect.h
	e.mu.RUnlock()

	if h == nil {
		return false
	}
	h(ev)
	return true
}

// dispatch decodes an event message and hands it to the handler registered
// right now. It reports whether a handler ran. Handlers run unlocked so they
// may re-register themselves.
func (e *eventRegistry) dispatch(msg *protocol.Message) (bool, error) {
	e.mu.RLock()
	accelCb := e.accelerometer.h
	buttonCb := e.button.h
	jointCb := e.joint.h
	e.mu.RUnlock()

	switch msg.Type {
	case protocol.TypeAccelerometerEvent:
		if accelCb == nil {
			return false, nil
		}
		ev, err := msg.GetAccelerometerEvent()
		if err != nil {
			return false, fmt.Errorf("bad accelerometer event: %w", err)
		}
		accelCb(*ev)

	case protocol.TypeButtonEvent:
		if buttonCb == nil {
			return false, nil
		}
		ev, err := msg.GetButtonEvent()
		if err != nil {
			return false, fmt.Errorf("bad button event: %w", err)
		}
		buttonCb(*ev)

	case protocol.TypeJointEvent:
		if jointCb == nil {
			return false, nil
		}
		ev, err := msg.GetJointEvent()
		if err != nil {
			return false, fmt.Errorf("bad joint event: %w", err)
		}
		jointCb(*ev)

	case protocol.TypeConnectEvent:
		ev, err := msg.GetConnectEvent()
		if err != nil {
			return false, fmt.Errorf("bad connect event: %w", err)
		}
		return e.fireConnect(*ev), nil

	default:
		return false, nil
	}
	return true, nil
}
