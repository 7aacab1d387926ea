package viewer

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/recera/pdfviewer/pkg/engine"
)

// lifecycle owns the single engine viewer instance and its attachment.
type lifecycle struct {
	eng  engine.Engine
	host engine.Host
	log  zerolog.Logger

	mode       engine.LayoutMode
	instance   engine.Viewer
	attachment engine.Attachment

	// generation increments on every rebuild so cached work keyed on the
	// instance can tell a fresh instance from the old one.
	generation uint64
}

// ensure returns with an instance bound to mode, rebuilding it when the mode
// differs or no instance exists yet. doc, if non-nil, is bound to a rebuilt
// instance before ensure returns.
func (l *lifecycle) ensure(mode engine.LayoutMode, doc engine.Document) (rebuilt bool, err error) {
	if l.instance != nil && l.mode == mode {
		return false, nil
	}

	// Tear the old instance down before the new one exists.
	l.teardown()

	at, err := l.host.NewAttachment()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAttachment, err)
	}
	if at == nil {
		return false, ErrAttachment
	}
	inst, err := l.eng.CreateViewer(mode, at)
	if err != nil {
		at.Release()
		return false, fmt.Errorf("viewer: create %s viewer: %w", mode, err)
	}
	if doc != nil {
		inst.BindDocument(doc)
	}

	l.mode = mode
	l.instance = inst
	l.attachment = at
	l.generation++

	l.log.Debug().
		Str("mode", mode.String()).
		Str("attachment", at.ID()).
		Uint64("generation", l.generation).
		Bool("rebound", doc != nil).
		Msg("viewer instance created")
	return true, nil
}

// teardown destroys the current instance and releases its attachment.
func (l *lifecycle) teardown() {
	if l.instance != nil {
		l.instance.Destroy()
		l.log.Debug().Uint64("generation", l.generation).Msg("viewer instance destroyed")
	}
	if l.attachment != nil {
		l.attachment.Release()
	}
	l.instance = nil
	l.attachment = nil
}
