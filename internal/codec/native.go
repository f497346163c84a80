package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"

	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/texture"
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// Native container layout, little-endian:
//
//	header     fileHeader
//	metadata   MetaCount × (u16 key length, key, u32 value length, value)
//	payload    payloadHeader, then PackedLen bytes of zstd data
//
// The decompressed payload is the image's backing store in storage
// order; Checksum is its xxhash64.
const (
	nativeMagic   = "TEXZ"
	nativeVersion = 1

	maxMetaEntries = 1 << 12
	maxMetaKey     = 1<<16 - 1
	maxMetaValue   = 1 << 20
	maxPayload     = 1 << 32
)

type fileHeader struct {
	Magic      [4]byte
	Version    uint16
	Dimension  uint8
	_          uint8
	Format     uint16
	_          uint16
	Width      uint32
	Height     uint32
	Depth      uint32
	MipCount   uint32
	ArrayCount uint32
	MetaCount  uint32
}

type payloadHeader struct {
	RawLen    uint64
	PackedLen uint64
	Checksum  uint64
}

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil)
		return enc
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxPayload))
		return dec
	},
}

func compressZstd(raw []byte) []byte {
	enc := zstdEncPool.Get().(*zstd.Encoder)
	defer zstdEncPool.Put(enc)
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

func decompressZstd(packed []byte, rawLen int) ([]byte, error) {
	dec := zstdDecPool.Get().(*zstd.Decoder)
	defer zstdDecPool.Put(dec)
	// The header's length is only a hint until the data backs it up.
	out, err := dec.DecodeAll(packed, make([]byte, 0, min(rawLen, 64*len(packed)+4096)))
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// NativeCodec reads and writes the layered container, which stores every
// cell of an image losslessly, including block-compressed formats.
type NativeCodec struct{}

// NewNative returns the native container codec.
func NewNative() *NativeCodec { return &NativeCodec{} }

func (*NativeCodec) Kind() Kind           { return KindNative }
func (*NativeCodec) Name() string         { return "TEXZ" }
func (*NativeCodec) Extensions() []string { return []string{".texz"} }
func (*NativeCodec) CanSave() bool        { return true }

func (*NativeCodec) Capabilities() Capabilities {
	formats := slices.Clone(uncompressed)
	formats = append(formats, pixfmt.BC1UNorm, pixfmt.BC2UNorm, pixfmt.BC3UNorm)
	return Capabilities{
		SupportsArray:            true,
		SupportsMipMaps:          true,
		SupportsDepth:            true,
		SupportsBlockCompression: true,
		SupportedFormats:         formats,
	}
}

func sniffNative(h []byte) bool { return bytes.HasPrefix(h, []byte(nativeMagic)) }

// GetMetaData implements Codec. Options other than Format are ignored.
func (c *NativeCodec) GetMetaData(r io.Reader, opts Options) (desc texture.Descriptor, err error) {
	const op = "get metadata"
	rs, start, err := openStream(op, r)
	if err != nil {
		return desc, err
	}
	defer func() {
		if _, serr := rs.Seek(start, io.SeekStart); serr != nil && err == nil {
			err = NewError(op, ErrStreamNotSeekable, serr)
		}
	}()
	if err := checkSignature(op, rs, start, sniffNative); err != nil {
		return desc, err
	}
	hdr, err := readHeader(op, rs)
	if err != nil {
		return desc, err
	}
	desc, err = c.descriptor(op, hdr, opts)
	return desc, err
}

// IsReadable implements Codec.
func (c *NativeCodec) IsReadable(r io.Reader, opts Options) bool {
	return readable(c.Name(), c.GetMetaData, r, opts)
}

func readHeader(op string, r io.Reader) (fileHeader, error) {
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return hdr, classify(op, ErrStreamNotReadable, err)
	}
	if string(hdr.Magic[:]) != nativeMagic {
		return hdr, NewError(op, ErrSignatureMismatch, nil)
	}
	if hdr.Version != nativeVersion {
		return hdr, NewError(op, ErrDecoderInit, fmt.Errorf("unsupported version %d", hdr.Version))
	}
	return hdr, nil
}

// descriptor validates the stored shape and applies the ArrayCount and
// Format overrides.
func (c *NativeCodec) descriptor(op string, hdr fileHeader, opts Options) (texture.Descriptor, error) {
	desc := texture.Descriptor{
		Dimension:  texture.Dimension(hdr.Dimension),
		Width:      int(hdr.Width),
		Height:     int(hdr.Height),
		Depth:      int(hdr.Depth),
		MipCount:   int(hdr.MipCount),
		ArrayCount: int(hdr.ArrayCount),
		Format:     pixfmt.Format(hdr.Format),
	}
	if !c.Capabilities().Supports(desc.Format) {
		return desc, NewError(op, ErrFormatNotSupported, errors.New(desc.Format.String()))
	}
	if size, ok := desc.ByteSize(); !ok || uint64(size) > maxPayload {
		return desc, NewError(op, ErrDecoderInit, fmt.Errorf("%dx%dx%d %s is too large", desc.Width, desc.Height, desc.Depth, desc.Format))
	}
	if err := desc.Validate(); err != nil {
		return desc, classify(op, ErrDecoderInit, err)
	}
	if opts.ArrayCount > 0 {
		desc.ArrayCount = min(desc.ArrayCount, opts.ArrayCount)
	}
	if opts.Format != pixfmt.FormatUnknown && opts.Format != desc.Format {
		if opts.Format.IsCompressed() || desc.Format.IsCompressed() || !c.Capabilities().Supports(opts.Format) {
			return desc, NewError(op, ErrFormatNotSupported, fmt.Errorf("%s to %s", desc.Format, opts.Format))
		}
		desc.Format = opts.Format
	}
	return desc, nil
}

// LoadFromStream implements Codec.
func (c *NativeCodec) LoadFromStream(r io.Reader, sizeHint int64, opts Options) (img *texture.Image, err error) {
	const op = "load"
	rs, start, err := openStream(op, r)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			img.Dispose()
			img = nil
			_, _ = rs.Seek(start, io.SeekStart)
		}
	}()
	if err := checkSignature(op, rs, start, sniffNative); err != nil {
		return nil, err
	}
	var src io.Reader = rs
	if sizeHint > 0 {
		src = io.LimitReader(rs, sizeHint)
	}

	hdr, err := readHeader(op, src)
	if err != nil {
		return nil, err
	}
	stored, err := c.descriptor(op, hdr, Options{})
	if err != nil {
		return nil, err
	}
	meta, err := readMetadata(op, src, hdr.MetaCount)
	if err != nil {
		return nil, err
	}
	size, _ := stored.ByteSize()
	raw, err := readPayload(op, src, size)
	if err != nil {
		return nil, err
	}

	full, err := texture.New(stored)
	if err != nil {
		return nil, classify(op, ErrCannotCreate, err)
	}
	defer full.Dispose()
	copy(full.Pixels(), raw)

	want, err := c.descriptor(op, hdr, opts)
	if err != nil {
		return nil, err
	}
	img, err = texture.New(want)
	if err != nil {
		return nil, classify(op, ErrCannotCreate, err)
	}
	if err := copyCells(img, full); err != nil {
		return img, classify(op, ErrFormatNotSupported, err)
	}
	for k, v := range meta {
		img.Metadata[k] = v
	}

	if sizeHint > 0 {
		if err := skipTo(rs, start+sizeHint); err != nil {
			return img, NewError(op, ErrStreamNotSeekable, err)
		}
	}
	return img, nil
}

// copyCells fills dst from the matching cells of src, converting pixels
// when the formats differ. dst may hold fewer array items than src.
func copyCells(dst, src *texture.Image) error {
	if dst.Format == src.Format {
		copy(dst.Pixels(), src.Pixels())
		return nil
	}
	for item := 0; item < dst.ArrayCount; item++ {
		for mip := 0; mip < dst.MipCount; mip++ {
			for s := 0; s < dst.DepthAt(mip); s++ {
				im, err := src.Buffer(mip, item, s).Image()
				if err != nil {
					return err
				}
				if err := dst.Buffer(mip, item, s).SetImage(im); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func readMetadata(op string, r io.Reader, count uint32) (map[string]string, error) {
	if count > maxMetaEntries {
		return nil, NewError(op, ErrDecoderInit, fmt.Errorf("%d metadata entries", count))
	}
	meta := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		var kl uint16
		if err := binary.Read(r, binary.LittleEndian, &kl); err != nil {
			return nil, classify(op, ErrStreamNotReadable, err)
		}
		key := make([]byte, kl)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, classify(op, ErrStreamNotReadable, err)
		}
		var vl uint32
		if err := binary.Read(r, binary.LittleEndian, &vl); err != nil {
			return nil, classify(op, ErrStreamNotReadable, err)
		}
		if vl > maxMetaValue {
			return nil, NewError(op, ErrDecoderInit, fmt.Errorf("metadata value of %d bytes", vl))
		}
		val := make([]byte, vl)
		if _, err := io.ReadFull(r, val); err != nil {
			return nil, classify(op, ErrStreamNotReadable, err)
		}
		meta[string(key)] = string(val)
	}
	return meta, nil
}

// readPayload reads and unpacks a payload that must hold exactly size
// bytes. The packed data is buffered as it arrives, so a lying PackedLen
// costs no more than the stream actually holds.
func readPayload(op string, r io.Reader, size int) ([]byte, error) {
	var ph payloadHeader
	if err := binary.Read(r, binary.LittleEndian, &ph); err != nil {
		return nil, classify(op, ErrStreamNotReadable, err)
	}
	if ph.RawLen != uint64(size) {
		return nil, NewError(op, ErrDecoderInit, fmt.Errorf("payload holds %d bytes, image needs %d", ph.RawLen, size))
	}
	if ph.PackedLen > maxPayload {
		return nil, NewError(op, ErrDecoderInit, fmt.Errorf("packed payload of %d bytes", ph.PackedLen))
	}
	var packed bytes.Buffer
	if _, err := io.CopyN(&packed, r, int64(ph.PackedLen)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, classify(op, ErrStreamNotReadable, err)
	}
	raw, err := decompressZstd(packed.Bytes(), size)
	if err != nil {
		return nil, NewError(op, ErrDecoderInit, err)
	}
	if uint64(len(raw)) != ph.RawLen {
		return nil, NewError(op, ErrDecoderInit, fmt.Errorf("payload is %d bytes, header says %d", len(raw), ph.RawLen))
	}
	if sum := xxhash.Sum64(raw); sum != ph.Checksum {
		Logger().Warn("native payload checksum mismatch", "want", ph.Checksum, "got", sum)
		return nil, NewError(op, ErrDecoderInit, errors.New("payload checksum mismatch"))
	}
	return raw, nil
}

// SaveToStream implements Codec. Every cell is written; options are
// ignored.
func (c *NativeCodec) SaveToStream(img *texture.Image, w io.Writer, _ Options) error {
	const op = "save"
	if img == nil || img.Disposed() {
		return NewError(op, ErrCannotCreate, texture.ErrDisposed)
	}
	if w == nil {
		return NewError(op, ErrCannotCreate, errors.New("nil writer"))
	}
	if !c.Capabilities().Supports(img.Format) {
		return NewError(op, ErrFormatNotSupported, errors.New(img.Format.String()))
	}

	keys := make([]string, 0, len(img.Metadata))
	for k := range img.Metadata {
		if len(k) > maxMetaKey {
			return NewError(op, ErrCannotCreate, fmt.Errorf("metadata key of %d bytes", len(k)))
		}
		if len(img.Metadata[k]) > maxMetaValue {
			return NewError(op, ErrCannotCreate, fmt.Errorf("metadata value of %d bytes for %q", len(img.Metadata[k]), k[:min(len(k), 32)]))
		}
		keys = append(keys, k)
	}
	if len(keys) > maxMetaEntries {
		return NewError(op, ErrCannotCreate, fmt.Errorf("%d metadata entries", len(keys)))
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	hdr := fileHeader{
		Version:    nativeVersion,
		Dimension:  uint8(img.Dimension),
		Format:     uint16(img.Format),
		Width:      uint32(img.Width),
		Height:     uint32(img.Height),
		Depth:      uint32(img.Depth),
		MipCount:   uint32(img.MipCount),
		ArrayCount: uint32(img.ArrayCount),
		MetaCount:  uint32(len(keys)),
	}
	copy(hdr.Magic[:], nativeMagic)
	_ = binary.Write(&buf, binary.LittleEndian, &hdr)
	for _, k := range keys {
		v := img.Metadata[k]
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(k)))
		buf.WriteString(k)
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(v)))
		buf.WriteString(v)
	}

	raw := img.Pixels()
	packed := compressZstd(raw)
	_ = binary.Write(&buf, binary.LittleEndian, &payloadHeader{
		RawLen:    uint64(len(raw)),
		PackedLen: uint64(len(packed)),
		Checksum:  xxhash.Sum64(raw),
	})
	buf.Write(packed)

	Logger().Debug("native encode", "format", img.Format, "raw", len(raw), "packed", len(packed))
	if _, err := buf.WriteTo(w); err != nil {
		return NewError(op, ErrCannotCreate, err)
	}
	return nil
}
