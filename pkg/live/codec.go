package live

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/scale"
	"github.com/recera/pdfviewer/pkg/viewer"
)

var (
	// ErrUnknownOp is returned for commands with an unrecognized op.
	ErrUnknownOp = errors.New("live: unknown op")
	// ErrBadCommand is returned for frames that are not valid commands.
	ErrBadCommand = errors.New("live: malformed command")
)

// Action is a decoded command, ready to run on the controller's loop.
type Action func(c *viewer.Controller)

// DecodeCommand parses a client frame into an Action.
func DecodeCommand(data []byte) (Command, Action, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, nil, fmt.Errorf("%w: %w", ErrBadCommand, err)
	}
	act, err := cmd.Action()
	return cmd, act, err
}

// Action validates the command's arguments and binds them.
func (cmd Command) Action() (Action, error) {
	switch cmd.Op {
	case OpNext:
		return (*viewer.Controller).NextPage, nil
	case OpPrev:
		return (*viewer.Controller).PreviousPage, nil
	case OpZoomIn:
		return (*viewer.Controller).ZoomIn, nil
	case OpZoomOut:
		return (*viewer.Controller).ZoomOut, nil
	case OpReload:
		return (*viewer.Controller).Reload, nil
	case OpPage:
		if cmd.Page < 1 {
			return nil, fmt.Errorf("%w: page %d", ErrBadCommand, cmd.Page)
		}
		return func(c *viewer.Controller) { c.SetPage(cmd.Page) }, nil
	case OpSource:
		return func(c *viewer.Controller) { c.SetSource(cmd.Source) }, nil
	case OpLayout:
		mode, err := engine.ParseLayout(cmd.Layout)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadCommand, err)
		}
		return func(c *viewer.Controller) { c.SetLayout(mode) }, nil
	case OpScale:
		mode, err := scale.ParseMode(cmd.Scale)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadCommand, err)
		}
		return func(c *viewer.Controller) { c.SetScaleMode(mode) }, nil
	case OpZoom:
		if cmd.Zoom <= 0 {
			return nil, fmt.Errorf("%w: zoom %v", ErrBadCommand, cmd.Zoom)
		}
		return func(c *viewer.Controller) { c.SetZoom(cmd.Zoom) }, nil
	case OpResize:
		if cmd.Width < 0 || cmd.Height < 0 {
			return nil, fmt.Errorf("%w: size %vx%v", ErrBadCommand, cmd.Width, cmd.Height)
		}
		size := scale.Size{Width: cmd.Width, Height: cmd.Height}
		return func(c *viewer.Controller) { c.Resize(size) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)
	}
}

// EncodeEvent converts a controller event into a frame.
func EncodeEvent(ev viewer.Event) Message {
	switch ev.Kind {
	case viewer.EventLoad:
		return Message{Type: FrameLoad, Page: ev.Page}
	case viewer.EventError:
		msg := Message{Type: FrameError}
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
		return msg
	default:
		return Message{Type: FrameChange, Page: ev.Page}
	}
}

// StateMessage wraps a snapshot in a frame.
func StateMessage(s viewer.Snapshot) Message {
	return Message{Type: FrameState, State: &s}
}
