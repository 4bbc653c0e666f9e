package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode, decMode = mustCodecModes()

func mustCodecModes() (cbor.EncMode, cbor.DecMode) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return enc, dec
}

// EncodeHost serializes a Host→Viewer frame to its stable binary form.
func EncodeHost(f *HostFrame) ([]byte, error) {
	if f.Type == "" {
		return nil, NewError(ProtocolViolation, fmt.Errorf("host frame missing type tag"))
	}
	b, err := encMode.Marshal(f)
	if err != nil {
		return nil, NewError(ProtocolViolation, err)
	}
	return b, nil
}

// DecodeHost parses bytes produced by EncodeHost.
func DecodeHost(b []byte) (*HostFrame, error) {
	var f HostFrame
	if err := decMode.Unmarshal(b, &f); err != nil {
		return nil, NewError(ProtocolViolation, err)
	}
	if f.Type == "" {
		return nil, NewError(ProtocolViolation, fmt.Errorf("decoded host frame missing type tag"))
	}
	return &f, nil
}

// EncodeViewer serializes a Viewer→Host frame.
func EncodeViewer(f *ViewerFrame) ([]byte, error) {
	if f.Type == "" {
		return nil, NewError(ProtocolViolation, fmt.Errorf("viewer frame missing type tag"))
	}
	b, err := encMode.Marshal(f)
	if err != nil {
		return nil, NewError(ProtocolViolation, err)
	}
	return b, nil
}

// DecodeViewer parses bytes produced by EncodeViewer.
func DecodeViewer(b []byte) (*ViewerFrame, error) {
	var f ViewerFrame
	if err := decMode.Unmarshal(b, &f); err != nil {
		return nil, NewError(ProtocolViolation, err)
	}
	if f.Type == "" {
		return nil, NewError(ProtocolViolation, fmt.Errorf("decoded viewer frame missing type tag"))
	}
	return &f, nil
}
