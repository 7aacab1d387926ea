package live

import (
	"errors"
	"testing"

	"github.com/recera/pdfviewer/pkg/viewer"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantOp  Op
		wantErr error
	}{
		{"next", `{"op":"next"}`, OpNext, nil},
		{"page", `{"op":"page","page":4}`, OpPage, nil},
		{"page zero", `{"op":"page","page":0}`, OpPage, ErrBadCommand},
		{"layout alias", `{"op":"layout","layout":"multi-page"}`, OpLayout, nil},
		{"bad layout", `{"op":"layout","layout":"grid"}`, OpLayout, ErrBadCommand},
		{"scale keyword", `{"op":"scale","scale":"contain"}`, OpScale, nil},
		{"scale percent", `{"op":"scale","scale":"150%"}`, OpScale, nil},
		{"bad scale", `{"op":"scale","scale":"huge"}`, OpScale, ErrBadCommand},
		{"zoom", `{"op":"zoom","zoom":2}`, OpZoom, nil},
		{"negative zoom", `{"op":"zoom","zoom":-1}`, OpZoom, ErrBadCommand},
		{"resize", `{"op":"resize","width":640,"height":480}`, OpResize, nil},
		{"empty source", `{"op":"source"}`, OpSource, nil},
		{"unknown", `{"op":"rotate"}`, "rotate", ErrUnknownOp},
		{"garbage", `{op}`, "", ErrBadCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, act, err := DecodeCommand([]byte(tt.frame))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if act != nil {
					t.Errorf("expected no action on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", cmd.Op, tt.wantOp)
			}
			if act == nil {
				t.Errorf("expected an action")
			}
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	load := EncodeEvent(viewer.Event{Kind: viewer.EventLoad, Page: 3})
	if load.Type != FrameLoad || load.Page != 3 {
		t.Errorf("load frame = %+v", load)
	}

	fail := EncodeEvent(viewer.Event{Kind: viewer.EventError, Err: errors.New("boom")})
	if fail.Type != FrameError || fail.Error != "boom" {
		t.Errorf("error frame = %+v", fail)
	}

	change := EncodeEvent(viewer.Event{Kind: viewer.EventChange, Page: 2})
	if change.Type != FrameChange || change.Page != 2 {
		t.Errorf("change frame = %+v", change)
	}
}
