package dump

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rclone/duscan/entry"
	"github.com/rclone/duscan/scanlog"
)

// Reader is the hand-rolled recursive-descent parser of §4.8: a lexer
// layered directly over an 8 KiB-buffered byte stream, with no
// intermediate token slice and no assumption that string content is valid
// UTF-8. Every failure carries a line:byte diagnostic (§7.3); there is no
// recovery.
type Reader struct {
	br   *bufio.Reader
	pos  int64
	line int
	peek int
	have bool

	// itemsSeen and UICallback implement the importer's progress cadence
	// of §5 ("once per 1024 entries"), much coarser than the live
	// walker's once-per-entry callout since import has no syscalls to
	// amortize the cost against.
	itemsSeen  int64
	UICallback func() bool
}

// bufferSize matches the "8 KiB-buffered byte stream" of §4.8.
const bufferSize = 8 * 1024

// uiPaceImport is the importer's UI callout cadence (§5).
const uiPaceImport = 1024

// NewReader wraps r for streaming import.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, bufferSize), line: 1}
}

// tick advances itemsSeen and, every uiPaceImport entries, invokes
// UICallback. It returns true if the UI asked to quit.
func (r *Reader) tick() bool {
	r.itemsSeen++
	if r.UICallback == nil {
		return false
	}
	if r.itemsSeen%uiPaceImport == 0 {
		return r.UICallback()
	}
	return false
}

func (r *Reader) readByte() (int, error) {
	if r.have {
		r.have = false
		return r.peek, nil
	}
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, err
	}
	r.pos++
	if b == '\n' {
		r.line++
	}
	return int(b), nil
}

func (r *Reader) peekByte() (int, error) {
	if r.have {
		return r.peek, nil
	}
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	r.peek = b
	r.have = true
	return b, nil
}

func (r *Reader) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("dump: line %d, byte %d: %s", r.line, r.pos, msg)
}

func (r *Reader) skipSpace() error {
	for {
		c, err := r.peekByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return nil
		}
		if _, err := r.readByte(); err != nil {
			return err
		}
	}
}

func (r *Reader) expect(c byte) error {
	if err := r.skipSpace(); err != nil {
		return err
	}
	got, err := r.readByte()
	if err != nil {
		if err == io.EOF {
			return r.errorf("unexpected end of input, wanted %q", c)
		}
		return err
	}
	if byte(got) != c {
		return r.errorf("unexpected %q, wanted %q", byte(got), c)
	}
	return nil
}

// literal consumes exactly s (used for true/false/null), assuming the
// caller already peeked its first byte.
func (r *Reader) literal(s string) error {
	for i := 0; i < len(s); i++ {
		got, err := r.readByte()
		if err != nil || byte(got) != s[i] {
			return r.errorf("expected literal %q", s)
		}
	}
	return nil
}

// parseString reads a JSON string (the opening '"' must already be
// consumed by the caller, matching the grammar's natural recursive
// descent: the caller knows it's looking at a string). Any byte except
// the disallowed control codes is accepted verbatim; no UTF-8 validation
// is performed (§4.8's core design contract).
func (r *Reader) parseString() (string, error) {
	var buf []byte
	for {
		c, err := r.readByte()
		if err != nil {
			if err == io.EOF {
				return "", r.errorf("unterminated string")
			}
			return "", err
		}
		switch c {
		case '"':
			return string(buf), nil
		case '\\':
			esc, err := r.readByte()
			if err != nil {
				return "", r.errorf("unterminated escape")
			}
			switch byte(esc) {
			case '"', '\\', '/':
				buf = append(buf, byte(esc))
			case 'n':
				buf = append(buf, '\n')
			case 't':
				buf = append(buf, '\t')
			case 'r':
				buf = append(buf, '\r')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case 'u':
				var v rune
				for i := 0; i < 4; i++ {
					h, err := r.readByte()
					if err != nil {
						return "", r.errorf("truncated \\u escape")
					}
					v = v<<4 | hexVal(rune(h))
				}
				buf = append(buf, []byte(string(v))...)
			default:
				return "", r.errorf("invalid escape \\%c", esc)
			}
		default:
			buf = append(buf, byte(c))
		}
	}
}

func hexVal(c rune) rune {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// parseUint reads digits greedily, saturating on overflow instead of
// erroring, per §4.8's permissive numeric parsing contract.
func (r *Reader) parseUint() (uint64, error) {
	var v uint64
	var sawDigit bool
	for {
		c, err := r.peekByte()
		if err != nil || c < '0' || c > '9' {
			break
		}
		r.readByte()
		sawDigit = true
		d := uint64(c - '0')
		if v > (math.MaxUint64-d)/10 {
			v = math.MaxUint64
			continue
		}
		v = v*10 + d
	}
	if !sawDigit {
		return 0, r.errorf("expected a digit")
	}
	return v, nil
}

// parseInt reads an optionally-signed integer with the same saturating
// discipline as parseUint.
func (r *Reader) parseInt() (int64, error) {
	neg := false
	c, err := r.peekByte()
	if err == nil && c == '-' {
		neg = true
		r.readByte()
	}
	u, err := r.parseUint()
	if err != nil {
		return 0, err
	}
	if u > math.MaxInt64 {
		if neg {
			return math.MinInt64, nil
		}
		return math.MaxInt64, nil
	}
	if neg {
		return -int64(u), nil
	}
	return int64(u), nil
}

// parseNumber consumes a JSON number in full (including any fractional or
// exponent part, which mtime values carry and §4.8 says to skip) and
// returns it as an int64 via the saturating integer path.
func (r *Reader) parseNumber() (int64, error) {
	v, err := r.parseInt()
	if err != nil {
		return 0, err
	}
	c, err := r.peekByte()
	if err == nil && c == '.' {
		r.readByte()
		for {
			c, err := r.peekByte()
			if err != nil || c < '0' || c > '9' {
				break
			}
			r.readByte()
		}
	}
	if c, err := r.peekByte(); err == nil && (c == 'e' || c == 'E') {
		r.readByte()
		if c, err := r.peekByte(); err == nil && (c == '+' || c == '-') {
			r.readByte()
		}
		for {
			c, err := r.peekByte()
			if err != nil || c < '0' || c > '9' {
				break
			}
			r.readByte()
		}
	}
	return v, nil
}

// skipValue consumes one JSON value of any shape without interpreting it;
// used for unknown object keys (§4.8).
func (r *Reader) skipValue() error {
	if err := r.skipSpace(); err != nil {
		return err
	}
	c, err := r.peekByte()
	if err != nil {
		return r.errorf("unexpected end of input")
	}
	switch {
	case c == '{':
		r.readByte()
		if err := r.skipSpace(); err != nil {
			return err
		}
		if c, _ := r.peekByte(); c == '}' {
			r.readByte()
			return nil
		}
		for {
			if err := r.expect('"'); err != nil {
				return err
			}
			if _, err := r.parseString(); err != nil {
				return err
			}
			if err := r.expect(':'); err != nil {
				return err
			}
			if err := r.skipValue(); err != nil {
				return err
			}
			if err := r.skipSpace(); err != nil {
				return err
			}
			c, err := r.readByte()
			if err != nil {
				return r.errorf("unterminated object")
			}
			if c == '}' {
				return nil
			}
			if c != ',' {
				return r.errorf("expected , or } in object, got %q", byte(c))
			}
			if err := r.skipSpace(); err != nil {
				return err
			}
		}
	case c == '[':
		r.readByte()
		if err := r.skipSpace(); err != nil {
			return err
		}
		if c, _ := r.peekByte(); c == ']' {
			r.readByte()
			return nil
		}
		for {
			if err := r.skipValue(); err != nil {
				return err
			}
			if err := r.skipSpace(); err != nil {
				return err
			}
			c, err := r.readByte()
			if err != nil {
				return r.errorf("unterminated array")
			}
			if c == ']' {
				return nil
			}
			if c != ',' {
				return r.errorf("expected , or ] in array, got %q", byte(c))
			}
			if err := r.skipSpace(); err != nil {
				return err
			}
		}
	case c == '"':
		r.readByte()
		_, err := r.parseString()
		return err
	case c == 't':
		return r.literal("true")
	case c == 'f':
		return r.literal("false")
	case c == 'n':
		return r.literal("null")
	case c == '-' || (c >= '0' && c <= '9'):
		_, err := r.parseNumber()
		return err
	default:
		return r.errorf("unexpected character %q", byte(c))
	}
}

// fields collects everything a single dump object can carry, regardless
// of whether it turns out to be a dir, file, link or special.
type fields struct {
	haveName bool
	name     string
	asize    uint64
	dsize    uint64
	haveDev  bool
	dev      int64
	haveIno  bool
	ino      uint64
	hlnkc    bool
	haveNlink bool
	nlink    uint64
	notreg   bool
	readErr  bool
	excluded string
	haveExcl bool
	haveUID  bool
	uid      uint64
	haveGID  bool
	gid      uint64
	haveMode bool
	mode     uint64
	haveMtime bool
	mtime    time.Time
	xattrs   int
}

func (r *Reader) parseObjectFields() (fields, error) {
	var f fields
	if err := r.expect('{'); err != nil {
		return f, err
	}
	if err := r.skipSpace(); err != nil {
		return f, err
	}
	if c, _ := r.peekByte(); c == '}' {
		r.readByte()
		return f, nil
	}
	for {
		if err := r.expect('"'); err != nil {
			return f, err
		}
		key, err := r.parseString()
		if err != nil {
			return f, err
		}
		if err := r.expect(':'); err != nil {
			return f, err
		}
		if err := r.skipSpace(); err != nil {
			return f, err
		}
		switch key {
		case keyName:
			if err := r.expect('"'); err != nil {
				return f, err
			}
			name, err := r.parseString()
			if err != nil {
				return f, err
			}
			if f.haveName {
				return f, r.errorf("duplicate name key")
			}
			f.haveName = true
			f.name = name
		case keyASize:
			v, err := r.parseNumber()
			if err != nil {
				return f, err
			}
			f.asize = uint64(v)
		case keyDSize:
			v, err := r.parseNumber()
			if err != nil {
				return f, err
			}
			f.dsize = uint64(v)
		case keyDev:
			v, err := r.parseNumber()
			if err != nil {
				return f, err
			}
			f.haveDev, f.dev = true, v
		case keyIno:
			v, err := r.parseNumber()
			if err != nil {
				return f, err
			}
			f.haveIno, f.ino = true, uint64(v)
		case keyHlnkc:
			if err := r.parseBoolInto(&f.hlnkc); err != nil {
				return f, err
			}
		case keyNlink:
			v, err := r.parseNumber()
			if err != nil {
				return f, err
			}
			f.haveNlink, f.nlink = true, uint64(v)
		case keyNotreg:
			if err := r.parseBoolInto(&f.notreg); err != nil {
				return f, err
			}
		case keyReadError:
			if err := r.parseBoolInto(&f.readErr); err != nil {
				return f, err
			}
		case keyExcluded:
			if err := r.expect('"'); err != nil {
				return f, err
			}
			s, err := r.parseString()
			if err != nil {
				return f, err
			}
			f.haveExcl, f.excluded = true, s
		case keyUID:
			v, err := r.parseNumber()
			if err != nil {
				return f, err
			}
			f.haveUID, f.uid = true, uint64(v)
		case keyGID:
			v, err := r.parseNumber()
			if err != nil {
				return f, err
			}
			f.haveGID, f.gid = true, uint64(v)
		case keyMode:
			v, err := r.parseNumber()
			if err != nil {
				return f, err
			}
			f.haveMode, f.mode = true, uint64(v)
		case keyMtime:
			if c, _ := r.peekByte(); c != '"' {
				// Numeric seconds since the epoch; any fractional part is skipped.
				v, err := r.parseNumber()
				if err != nil {
					return f, err
				}
				f.haveMtime, f.mtime = true, time.Unix(v, 0)
				break
			}
			if err := r.expect('"'); err != nil {
				return f, err
			}
			s, err := r.parseString()
			if err != nil {
				return f, err
			}
			f.haveMtime = true
			t, ok := parsePermissiveTime(s)
			if !ok {
				scanlog.Debugf(f.name, "dump: unparsable mtime %q, leaving zero value", s)
			}
			f.mtime = t
		case keyXattrs:
			v, err := r.parseNumber()
			if err != nil {
				return f, err
			}
			f.xattrs = int(v)
		default:
			if err := r.skipValue(); err != nil {
				return f, err
			}
		}
		if err := r.skipSpace(); err != nil {
			return f, err
		}
		c, err := r.readByte()
		if err != nil {
			return f, r.errorf("unterminated object")
		}
		if c == '}' {
			break
		}
		if c != ',' {
			return f, r.errorf("expected , or } in object, got %q", byte(c))
		}
		if err := r.skipSpace(); err != nil {
			return f, err
		}
	}
	if !f.haveName {
		return f, r.errorf("entry object missing required \"name\" key")
	}
	return f, nil
}

func (r *Reader) parseBoolInto(dst *bool) error {
	c, err := r.peekByte()
	if err != nil {
		return r.errorf("expected boolean")
	}
	switch c {
	case 't':
		if err := r.literal("true"); err != nil {
			return err
		}
		*dst = true
	case 'f':
		if err := r.literal("false"); err != nil {
			return err
		}
		*dst = false
	default:
		return r.errorf("expected boolean, got %q", byte(c))
	}
	return nil
}

// parsePermissiveTime accepts an RFC 3339 timestamp and silently skips
// any fractional-second component it can't parse (§4.8), rather than
// failing the whole import over a cosmetic mtime. The bool result is
// false when no layout matched at all.
func parsePermissiveTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if dot := indexByte(s, '.'); dot >= 0 {
		// Trim the fractional part down to something time.Parse accepts,
		// re-adding the zone suffix if there was one.
		zone := ""
		for i := dot + 1; i < len(s); i++ {
			if s[i] == 'Z' || s[i] == '+' || s[i] == '-' {
				zone = s[i:]
				break
			}
		}
		if t, err := time.Parse(time.RFC3339, s[:dot]+zone); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func excludedFromString(s string) entry.Excluded {
	switch s {
	case "othfs":
		return entry.ExcludedOtherFS
	case "kernfs":
		return entry.ExcludedKernFS
	case "pattern", excludedFromSymlink:
		return entry.ExcludedPattern
	default:
		// "Unknown excluded values default to pattern" (§4.8).
		return entry.ExcludedPattern
	}
}

func toEntry(f fields, devReg *entry.DeviceRegistry, isDir, isRoot bool) *entry.Entry {
	var e *entry.Entry
	switch {
	case isRoot:
		e = entry.NewRoot(f.name)
	case isDir:
		e = entry.NewDir(f.name)
	case f.hlnkc:
		e = entry.NewLink(f.name, f.asize, f.dsize/512, f.ino, f.nlink)
	default:
		e = entry.NewFile(f.name, f.asize, f.dsize/512)
	}
	if isDir {
		if f.haveDev {
			e.DevID = devReg.ID(uint64(f.dev))
		}
	}
	e.NotReg = f.notreg
	if f.haveExcl {
		e.Excluded = excludedFromString(f.excluded)
		e.Size, e.Blocks = 0, 0
	}
	if f.readErr {
		entry.SetErr(e)
	}
	if f.haveUID || f.haveGID || f.haveMode || f.haveMtime {
		e.Ext = &entry.Ext{
			UID:        uint32(f.uid),
			GID:        uint32(f.gid),
			Mode:       uint32(f.mode),
			MTime:      f.mtime,
			XattrCount: f.xattrs,
		}
	}
	return e
}

// ParseDocument reads one complete dump document from r and returns its
// root entry, ready for browsing. Every failure carries the line:byte
// diagnostic mandated by §7.3.
func ParseDocument(r io.Reader) (*entry.Entry, error) {
	return ParseDocumentWithProgress(r, nil)
}

// ParseDocumentWithProgress is ParseDocument with a UI callout every
// uiPaceImport entries (§5); uiCallback may be nil.
func ParseDocumentWithProgress(r io.Reader, uiCallback func() bool) (*entry.Entry, error) {
	rd := NewReader(r)
	rd.UICallback = uiCallback
	root, _, err := rd.parseDocument(nil)
	return root, err
}

// ConvertToDump parses one dump document from r and re-emits it through
// w without linking entries into a tree: only the directories currently
// open are held — the "dump-to-dump conversion" mode of §4.8.
func ConvertToDump(r io.Reader, w *Writer, meta Metadata, extended bool) error {
	return ConvertToDumpWithProgress(r, w, meta, extended, nil)
}

// ConvertToDumpWithProgress is ConvertToDump with a UI callout every
// uiPaceImport entries (§5); uiCallback may be nil.
func ConvertToDumpWithProgress(r io.Reader, w *Writer, meta Metadata, extended bool, uiCallback func() bool) error {
	rd := NewReader(r)
	rd.UICallback = uiCallback
	_, _, err := rd.parseDocument(&sinkTarget{w: w, extended: extended, meta: meta})
	return err
}

type sinkTarget struct {
	w        *Writer
	extended bool
	meta     Metadata
}

func (rd *Reader) parseDocument(sink *sinkTarget) (*entry.Entry, *entry.LinkTable, error) {
	if err := rd.expect('['); err != nil {
		return nil, nil, err
	}
	major, err := rd.parseNumber()
	if err != nil {
		return nil, nil, err
	}
	if err := rd.expect(','); err != nil {
		return nil, nil, err
	}
	if _, err := rd.parseNumber(); err != nil {
		return nil, nil, err
	}
	if err := rd.expect(','); err != nil {
		return nil, nil, err
	}
	if major != Major {
		return nil, nil, rd.errorf("unsupported dump major version %d", major)
	}
	if err := rd.skipValue(); err != nil { // metadata object, not needed for the tree
		return nil, nil, err
	}
	if err := rd.expect(','); err != nil {
		return nil, nil, err
	}

	devReg := entry.NewDeviceRegistry()
	linkTable := entry.NewLinkTable()

	if sink != nil {
		if err := sink.w.Begin(sink.meta); err != nil {
			return nil, nil, err
		}
	}
	root, err := rd.parseDirArray(nil, devReg, linkTable, true, sink)
	if err != nil {
		return nil, nil, err
	}
	if err := rd.expect(']'); err != nil {
		return nil, nil, err
	}
	linkTable.Finalize()
	if sink != nil {
		if err := sink.w.Finish(); err != nil {
			return nil, nil, err
		}
	}
	return root, linkTable, nil
}

// parseDirArray parses one directory array: '[' dir-object child* ']'.
// Sub-directories are arrays with the same recursive shape (§4.8).
func (rd *Reader) parseDirArray(parent *entry.Entry, devReg *entry.DeviceRegistry, linkTable *entry.LinkTable, isRoot bool, sink *sinkTarget) (*entry.Entry, error) {
	if err := rd.expect('['); err != nil {
		return nil, err
	}
	if err := rd.skipSpace(); err != nil {
		return nil, err
	}
	if c, _ := rd.peekByte(); c != '{' {
		return nil, rd.errorf("expected directory object, got %q", byte(c))
	}
	f, err := rd.parseObjectFields()
	if err != nil {
		return nil, err
	}
	dir := toEntry(f, devReg, true, isRoot)
	if parent != nil && sink == nil {
		entry.AddChild(parent, dir)
		if dir.Err {
			entry.SetErr(dir)
		}
	}
	parentDevID := int32(-1)
	if parent != nil {
		parentDevID = parent.DevID
	}
	if sink != nil {
		if err := sink.w.EnterDir(dir, parentDevID, sink.extended); err != nil {
			return nil, err
		}
	}

	for {
		if err := rd.skipSpace(); err != nil {
			return nil, err
		}
		c, err := rd.readByte()
		if err != nil {
			return nil, rd.errorf("unterminated directory array")
		}
		if c == ']' {
			break
		}
		if c != ',' {
			return nil, rd.errorf("expected , or ] in directory array, got %q", byte(c))
		}
		if err := rd.skipSpace(); err != nil {
			return nil, err
		}
		c, err = rd.peekByte()
		if err != nil {
			return nil, rd.errorf("unterminated directory array")
		}
		if c == '[' {
			if _, err := rd.parseDirArray(dir, devReg, linkTable, false, sink); err != nil {
				return nil, err
			}
			continue
		}
		childFields, err := rd.parseObjectFields()
		if err != nil {
			return nil, err
		}
		if quit := rd.tick(); quit {
			return nil, rd.errorf("import cancelled")
		}
		child := toEntry(childFields, devReg, false, false)
		if sink == nil {
			entry.AddChild(dir, child)
			if child.Err {
				entry.SetErr(child)
			}
			if child.Kind == entry.KindLink {
				linkTable.Observe(dir.DevID, child)
			} else {
				entry.AddStats(child, child.Size, child.Blocks)
			}
		}
		if sink != nil {
			if err := sink.w.WriteChild(child, dir.DevID, sink.extended); err != nil {
				return nil, err
			}
		}
	}
	if sink != nil {
		if err := sink.w.LeaveDir(); err != nil {
			return nil, err
		}
	}
	return dir, nil
}
