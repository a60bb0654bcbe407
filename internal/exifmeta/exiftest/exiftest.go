// Package exiftest builds small JPEG payloads with hand-assembled EXIF blocks
// for tests. The images carry no pixel data; they are only meant for metadata
// parsers.
package exiftest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// TIFF field types.
const (
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5
)

// EXIF tag ids.
const (
	tagExifPointer      = 0x8769
	tagGPSPointer       = 0x8825
	tagDateTimeOriginal = 0x9003
	tagGPSLatitudeRef   = 0x0001
	tagGPSLatitude      = 0x0002
	tagGPSLongitudeRef  = 0x0003
	tagGPSLongitude     = 0x0004
)

// Options selects which fields are written. Zero values are omitted.
type Options struct {
	// CaptureTime in EXIF layout, e.g. "2024:03:02 10:00:00".
	CaptureTime string
	// GPS writes latitude/longitude when non-nil.
	GPS *[2]float64
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// JPEG returns a minimal JPEG stream (SOI, APP1 Exif, EOI).
func JPEG(opts Options) []byte {
	tiff := TIFF(opts)

	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&b, binary.BigEndian, uint16(len(tiff)+6+2))
	b.WriteString("Exif\x00\x00")
	b.Write(tiff)
	b.Write([]byte{0xFF, 0xD9})
	return b.Bytes()
}

// Plain returns a JPEG-looking stream without any APP1 segment.
func Plain() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xDB, 0x00, 0x04, 0x00, 0x00, 0xFF, 0xD9}
}

// TIFF returns the little-endian TIFF structure embedded in the APP1 segment.
func TIFF(opts Options) []byte {
	var exifIFD, gpsIFD []entry
	if opts.CaptureTime != "" {
		exifIFD = append(exifIFD, entry{tagDateTimeOriginal, typeASCII, uint32(len(opts.CaptureTime) + 1), append([]byte(opts.CaptureTime), 0)})
	}
	if opts.GPS != nil {
		lat, lng := opts.GPS[0], opts.GPS[1]
		latRef, lngRef := "N", "E"
		if lat < 0 {
			latRef = "S"
		}
		if lng < 0 {
			lngRef = "W"
		}
		gpsIFD = []entry{
			{tagGPSLatitudeRef, typeASCII, 2, []byte(latRef + "\x00")},
			{tagGPSLatitude, typeRational, 3, degrees(math.Abs(lat))},
			{tagGPSLongitudeRef, typeASCII, 2, []byte(lngRef + "\x00")},
			{tagGPSLongitude, typeRational, 3, degrees(math.Abs(lng))},
		}
	}

	n0 := 0
	if len(exifIFD) > 0 {
		n0++
	}
	if len(gpsIFD) > 0 {
		n0++
	}

	const headerLen = 8
	ifdLen := func(n int) uint32 { return uint32(2 + 12*n + 4) }

	off0 := uint32(headerLen)
	offExif := off0 + ifdLen(n0)
	offGPS := offExif
	if len(exifIFD) > 0 {
		offGPS += ifdLen(len(exifIFD))
	}
	dataOff := offGPS
	if len(gpsIFD) > 0 {
		dataOff += ifdLen(len(gpsIFD))
	}

	var ifd0 []entry
	if len(exifIFD) > 0 {
		ifd0 = append(ifd0, entry{tagExifPointer, typeLong, 1, le32(offExif)})
	}
	if len(gpsIFD) > 0 {
		ifd0 = append(ifd0, entry{tagGPSPointer, typeLong, 1, le32(offGPS)})
	}

	var head, data bytes.Buffer
	head.WriteString("II")
	_ = binary.Write(&head, binary.LittleEndian, uint16(42))
	_ = binary.Write(&head, binary.LittleEndian, off0)

	for _, ifd := range [][]entry{ifd0, exifIFD, gpsIFD} {
		if ifd == nil && len(head.Bytes()) > headerLen {
			continue
		}
		writeIFD(&head, &data, ifd, &dataOff)
	}

	return append(head.Bytes(), data.Bytes()...)
}

func writeIFD(head, data *bytes.Buffer, entries []entry, dataOff *uint32) {
	_ = binary.Write(head, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(head, binary.LittleEndian, e.tag)
		_ = binary.Write(head, binary.LittleEndian, e.typ)
		_ = binary.Write(head, binary.LittleEndian, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			head.Write(v)
			continue
		}
		_ = binary.Write(head, binary.LittleEndian, *dataOff)
		data.Write(e.data)
		*dataOff += uint32(len(e.data))
		if len(e.data)%2 == 1 {
			data.WriteByte(0)
			*dataOff++
		}
	}
	_ = binary.Write(head, binary.LittleEndian, uint32(0))
}

// degrees encodes v as degrees, decimal minutes and zero seconds.
func degrees(v float64) []byte {
	deg := math.Floor(v)
	minutes := math.Round((v - deg) * 60 * 10000)
	var b bytes.Buffer
	for _, r := range [][2]uint32{{uint32(deg), 1}, {uint32(minutes), 10000}, {0, 1}} {
		_ = binary.Write(&b, binary.LittleEndian, r[0])
		_ = binary.Write(&b, binary.LittleEndian, r[1])
	}
	return b.Bytes()
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
