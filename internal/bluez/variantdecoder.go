package bluez

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/ugorji/go/codec"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

// propertyDecoder decodes BlueZ property maps into structs.
//
// The variant values are encoded to JSON, and the result is decoded into
// the struct. A field receives the property named by its "codec" tag, so
// the tag must be the exact BlueZ property name (for example
// `codec:"DiscoverableTimeout,omitempty"`). Properties without a matching
// field are ignored. Values with a custom text form, like bluetooth.Address,
// implement encoding.TextUnmarshaler.
type propertyDecoder struct {
	handle codec.JsonHandle
	buf    []byte

	mu sync.Mutex
}

// variantExt encodes a DBus variant as its inner value.
type variantExt struct{}

var properties = newPropertyDecoder()

func newPropertyDecoder() *propertyDecoder {
	d := &propertyDecoder{}
	d.handle.TypeInfos = codec.NewTypeInfos([]string{"codec"})
	d.handle.SetInterfaceExt(reflect.TypeOf(dbus.Variant{}), 1, variantExt{})
	d.handle.SetInterfaceExt(reflect.TypeOf((*dbus.Variant)(nil)), 1, variantExt{})

	return d
}

// ConvertExt returns the value held by the variant.
func (variantExt) ConvertExt(v any) any {
	switch variant := v.(type) {
	case *dbus.Variant:
		return variant.Value()

	case dbus.Variant:
		return variant.Value()
	}

	return nil
}

// UpdateExt is a no-op, property maps are only ever encoded.
func (variantExt) UpdateExt(any, any) {}

// decode decodes the properties into data, which must be a pointer
// to a struct. Each of the required properties must be present.
func (d *propertyDecoder) decode(props map[string]dbus.Variant, data any, required ...string) error {
	for _, name := range required {
		value, ok := props[name]
		if !ok {
			return fmt.Errorf("%w: property %q is missing", errorkinds.ErrEventDataParse, name)
		}

		if value.Signature().Empty() {
			return fmt.Errorf("%w: property %q has no signature", errorkinds.ErrEventDataParse, name)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = d.buf[:0]
	if err := codec.NewEncoderBytes(&d.buf, &d.handle).Encode(props); err != nil {
		return err
	}

	return codec.NewDecoderBytes(d.buf, &d.handle).Decode(data)
}
