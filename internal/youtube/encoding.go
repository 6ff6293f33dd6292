package youtube

import (
	"bytes"
	"mime"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/unicode/norm"
)

type EncodingResult struct {
	Encoding   string  `json:"encoding"`
	Confidence float64 `json:"confidence"`
	HasBOM     bool    `json:"has_bom"`
}

type encodingCandidate struct {
	name       string
	encoding   encoding.Encoding
	confidence float64
}

const maxSampleSize = 8192

// DecodeBody converts a response body to NFC-normalised UTF-8. The charset
// comes from a byte order mark, then the Content-Type header, then a guess
// over the encodings caption tracks are commonly served in.
func DecodeBody(data []byte, contentType string) string {
	if len(data) == 0 {
		return ""
	}

	enc := encodingFor(data, contentType)
	if enc != nil {
		if decoded, err := enc.NewDecoder().Bytes(data); err == nil {
			data = decoded
		}
	}

	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	return norm.NFC.String(string(data))
}

func encodingFor(data []byte, contentType string) encoding.Encoding {
	if bom := detectBOM(data); bom.HasBOM {
		switch bom.Encoding {
		case "utf-16le":
			return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
		case "utf-16be":
			return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
		default:
			return nil
		}
	}

	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if charset := params["charset"]; charset != "" {
			if enc, err := htmlindex.Get(charset); err == nil {
				if name, _ := htmlindex.Name(enc); name == "utf-8" {
					return nil
				}
				return enc
			}
		}
	}

	result := DetectEncoding(data)
	for _, cand := range legacyCandidates(nil) {
		if cand.name == result.Encoding {
			return cand.encoding
		}
	}
	return nil
}

func DetectEncoding(data []byte) EncodingResult {
	if len(data) == 0 {
		return EncodingResult{Encoding: "utf-8", Confidence: 1.0}
	}

	if result := detectBOM(data); result.HasBOM {
		return result
	}

	sample := data
	if len(sample) > maxSampleSize {
		sample = data[:maxSampleSize]
		// do not judge a multi-byte sequence cut at the sample boundary
		for i := 0; i < utf8.UTFMax && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}

	if utf8.Valid(sample) {
		return EncodingResult{Encoding: "utf-8", Confidence: 0.95}
	}

	best := EncodingResult{Encoding: "utf-8", Confidence: 0.3}
	for _, cand := range legacyCandidates(sample) {
		if cand.confidence > best.Confidence {
			best.Encoding = cand.name
			best.Confidence = cand.confidence
		}
	}
	return best
}

func legacyCandidates(sample []byte) []encodingCandidate {
	return []encodingCandidate{
		{name: "euc-kr", encoding: korean.EUCKR, confidence: scoreDoubleByte(sample, 0xA1, 0xFE, 0xA1, 0xFE)},
		{name: "shift-jis", encoding: japanese.ShiftJIS, confidence: scoreShiftJIS(sample)},
		{name: "windows-1252", encoding: charmap.Windows1252, confidence: scoreWindows1252(sample)},
	}
}

func detectBOM(data []byte) EncodingResult {
	if len(data) >= 3 && bytes.Equal(data[:3], []byte{0xEF, 0xBB, 0xBF}) {
		return EncodingResult{Encoding: "utf-8", Confidence: 1.0, HasBOM: true}
	}

	if len(data) >= 2 {
		if bytes.Equal(data[:2], []byte{0xFF, 0xFE}) {
			return EncodingResult{Encoding: "utf-16le", Confidence: 1.0, HasBOM: true}
		}
		if bytes.Equal(data[:2], []byte{0xFE, 0xFF}) {
			return EncodingResult{Encoding: "utf-16be", Confidence: 1.0, HasBOM: true}
		}
	}

	return EncodingResult{}
}

// scoreDoubleByte is the share of high bytes that form valid lead/trail pairs.
func scoreDoubleByte(data []byte, leadLo, leadHi, trailLo, trailHi byte) float64 {
	pairs, high := 0, 0
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b < 0x80 {
			continue
		}
		high++
		if b >= leadLo && b <= leadHi && i+1 < len(data) {
			next := data[i+1]
			if next >= trailLo && next <= trailHi {
				pairs++
				high++
				i++
			}
		}
	}
	if high == 0 {
		return 0
	}
	return float64(pairs*2) / float64(high)
}

func scoreShiftJIS(data []byte) float64 {
	pairs, high := 0, 0
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b < 0x80 {
			continue
		}
		high++
		if b >= 0xA1 && b <= 0xDF {
			// half-width katakana
			continue
		}
		isLead := (b >= 0x81 && b <= 0x9F) || (b >= 0xE0 && b <= 0xEF)
		if isLead && i+1 < len(data) {
			next := data[i+1]
			if (next >= 0x40 && next <= 0x7E) || (next >= 0x80 && next <= 0xFC) {
				pairs++
				high++
				i++
			}
		}
	}
	if high == 0 {
		return 0
	}
	return float64(pairs*2) / float64(high) * 0.9
}

func scoreWindows1252(data []byte) float64 {
	high := 0
	for _, b := range data {
		if b >= 0x80 {
			high++
		}
	}
	if high == 0 {
		return 0
	}
	return 0.4
}
