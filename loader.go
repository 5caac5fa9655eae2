package xpk

// Load returns the asset bytes held in buf using the default configuration.
// See Codec.Load.
func Load(buf []byte) ([]byte, error) {
	return NewCodec(Config{}).Load(buf)
}

// Load returns the asset bytes held in buf. Packed buffers are unpacked,
// including containers nested inside them; anything without the signature
// is returned unchanged.
func (c *Codec) Load(buf []byte) ([]byte, error) {
	if !IsPacked(buf) {
		return buf, nil
	}
	return c.UnpackAll(buf)
}

// Restore returns the data PackOrStore was given. A container is unpacked
// exactly one level, so a stored container comes back as is; anything
// else is returned unchanged.
func (c *Codec) Restore(blob []byte) ([]byte, error) {
	if !IsPacked(blob) {
		return blob, nil
	}
	return c.Unpack(blob)
}

// PackOrStore packs src with mode and reports whether the result is a
// container. When packing does not shrink src, src itself is returned,
// unless it starts with the signature: then it is wrapped with WrapRaw so
// that Restore and Unpack give it back verbatim. Other errors, such as an
// invalid mode, are returned as is.
func (c *Codec) PackOrStore(src []byte, mode Mode) ([]byte, bool, error) {
	out, err := c.Pack(src, mode)
	switch {
	case err == nil:
		return out, true, nil
	case isNotCompressible(err):
		return c.storeRaw(src)
	default:
		return nil, false, err
	}
}

func (c *Codec) storeRaw(src []byte) ([]byte, bool, error) {
	if !IsPacked(src) {
		return src, false, nil
	}
	out, err := c.WrapRaw(src)
	if err != nil {
		return nil, false, err
	}
	c.logger.Debug("wrapped raw data that starts with the signature", "size", len(src))
	return out, true, nil
}
