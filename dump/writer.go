package dump

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/rclone/duscan/entry"
)

// Writer streams the model as the dump format of §4.7, one add_stat at a
// time: it never holds more than the current object in memory, matching
// the "File sink" half of the scan context (§4.2) and the "no
// intermediate representation is built" requirement of §4.9.
type Writer struct {
	bw     *bufio.Writer
	frames []bool // per open directory level: has an element already been written?
}

// NewWriter wraps w for streaming dump output.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Begin writes the top-level array's first three elements: MAJOR, MINOR,
// and the metadata object. The caller must follow with exactly one
// EnterDir call (for the root) and a matching LeaveDir, then Finish.
func (w *Writer) Begin(meta Metadata) error {
	if _, err := fmt.Fprintf(w.bw, "[%d,%d,", Major, Minor); err != nil {
		return err
	}
	if err := w.writeMetaObject(meta); err != nil {
		return err
	}
	_, err := w.bw.WriteString(",")
	return err
}

func (w *Writer) writeMetaObject(meta Metadata) error {
	w.bw.WriteString("{")
	w.writeKey(keyProgName, true)
	writeJSONString(w.bw, meta.ProgName)
	w.bw.WriteString(",")
	w.writeKey(keyProgVer, true)
	writeJSONString(w.bw, meta.ProgVer)
	w.bw.WriteString(",")
	w.writeKey(keyTimestamp, true)
	writeJSONString(w.bw, meta.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	_, err := w.bw.WriteString("}")
	return err
}

// enterComma writes a separating comma if this dir already has an
// element, then marks that it now does.
func (w *Writer) enterComma() error {
	if len(w.frames) == 0 {
		return nil
	}
	top := len(w.frames) - 1
	if w.frames[top] {
		if _, err := w.bw.WriteString(","); err != nil {
			return err
		}
	}
	w.frames[top] = true
	return nil
}

// EnterDir opens a nested array for a directory entry (the root, or a
// subdirectory found during the walk) and writes its own metadata object
// as the array's first element. Every EnterDir must be matched by a
// LeaveDir once the directory's children have all been written.
func (w *Writer) EnterDir(e *entry.Entry, parentDevID int32, extended bool) error {
	if err := w.enterComma(); err != nil {
		return err
	}
	if _, err := w.bw.WriteString("["); err != nil {
		return err
	}
	if err := w.writeEntryObject(e, parentDevID, extended); err != nil {
		return err
	}
	w.frames = append(w.frames, false)
	return nil
}

// LeaveDir closes the array opened by the matching EnterDir.
func (w *Writer) LeaveDir() error {
	if len(w.frames) == 0 {
		return fmt.Errorf("dump: LeaveDir without matching EnterDir")
	}
	w.frames = w.frames[:len(w.frames)-1]
	_, err := w.bw.WriteString("]")
	return err
}

// WriteChild writes a non-directory child (file, link, or special) of the
// currently open directory.
func (w *Writer) WriteChild(e *entry.Entry, parentDevID int32, extended bool) error {
	if len(w.frames) == 0 {
		return fmt.Errorf("dump: WriteChild outside any directory")
	}
	if err := w.enterComma(); err != nil {
		return err
	}
	return w.writeEntryObject(e, parentDevID, extended)
}

// Finish closes the top-level array and flushes the buffer. Writer errors
// (including from Finish) are treated as fatal by the caller (§7): there
// is no retry or truncation policy.
func (w *Writer) Finish() error {
	if len(w.frames) != 0 {
		return fmt.Errorf("dump: Finish with %d directory level(s) still open", len(w.frames))
	}
	if _, err := w.bw.WriteString("]"); err != nil {
		return err
	}
	return w.bw.Flush()
}

func (w *Writer) writeKey(key string, first bool) {
	if !first {
		w.bw.WriteString(",")
	}
	w.bw.WriteString(`"`)
	w.bw.WriteString(key)
	w.bw.WriteString(`":`)
}

func (w *Writer) writeEntryObject(e *entry.Entry, parentDevID int32, extended bool) error {
	w.bw.WriteString("{")
	w.writeKey(keyName, true)
	writeJSONString(w.bw, e.Name)

	if e.Size != 0 {
		w.writeKey(keyASize, false)
		w.bw.WriteString(strconv.FormatUint(e.Size, 10))
	}
	if e.Blocks != 0 {
		w.writeKey(keyDSize, false)
		w.bw.WriteString(strconv.FormatUint(e.Blocks*512, 10))
	}
	if e.Kind.IsDir() && e.DevID != parentDevID {
		w.writeKey(keyDev, false)
		w.bw.WriteString(strconv.FormatInt(int64(e.DevID), 10))
	}
	if e.Kind == entry.KindLink {
		w.writeKey(keyIno, false)
		w.bw.WriteString(strconv.FormatUint(e.Ino, 10))
		w.writeKey(keyHlnkc, false)
		w.bw.WriteString("true")
		w.writeKey(keyNlink, false)
		w.bw.WriteString(strconv.FormatUint(e.NLink, 10))
	}
	if e.NotReg {
		w.writeKey(keyNotreg, false)
		w.bw.WriteString("true")
	}
	if e.Err {
		w.writeKey(keyReadError, false)
		w.bw.WriteString("true")
	}
	if e.Excluded != entry.ExcludedNone {
		w.writeKey(keyExcluded, false)
		writeJSONString(w.bw, e.Excluded.String())
	}
	if extended && e.Ext != nil {
		w.writeKey(keyUID, false)
		w.bw.WriteString(strconv.FormatUint(uint64(e.Ext.UID), 10))
		w.writeKey(keyGID, false)
		w.bw.WriteString(strconv.FormatUint(uint64(e.Ext.GID), 10))
		w.writeKey(keyMode, false)
		w.bw.WriteString(strconv.FormatUint(uint64(e.Ext.Mode), 10))
		w.writeKey(keyMtime, false)
		writeJSONString(w.bw, e.Ext.MTime.UTC().Format("2006-01-02T15:04:05.999999999Z"))
		if e.Ext.XattrCount != 0 {
			w.writeKey(keyXattrs, false)
			w.bw.WriteString(strconv.Itoa(e.Ext.XattrCount))
		}
	}
	_, err := w.bw.WriteString("}")
	return err
}

// writeJSONString emits s as a JSON string literal under the lax policy
// of §4.7: bytes >= 0x20 other than '"' and '\' are written verbatim,
// including bytes >= 0x80 that are not valid UTF-8. Iterating byte-by-byte
// (rather than ranging over the string, which decodes runes) is what
// makes this safe for non-UTF-8 names.
func writeJSONString(bw *bufio.Writer, s string) {
	bw.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			bw.WriteByte('\\')
			bw.WriteByte(c)
		case c == '\n':
			bw.WriteString(`\n`)
		case c == '\r':
			bw.WriteString(`\r`)
		case c == '\t':
			bw.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(bw, `\u%04x`, c)
		default:
			bw.WriteByte(c)
		}
	}
	bw.WriteByte('"')
}
