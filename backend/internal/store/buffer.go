package store

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

// piece references a run of runes in either the original or the add buffer.
type piece struct {
	buf    bufferKind
	offset int
	length int
}

// PieceTable holds document content as an immutable original buffer plus an
// append-only add buffer, with an ordered piece list describing the current
// text. Edits only splice the piece list, never move text.
type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	pt := &PieceTable{original: r}
	if len(r) > 0 {
		pt.pieces = []piece{{buf: bufOriginal, offset: 0, length: len(r)}}
	}
	return pt
}

func (pt *PieceTable) Len() int {
	n := 0
	for _, p := range pt.pieces {
		n += p.length
	}
	return n
}

func (pt *PieceTable) String() string {
	out := make([]rune, 0, pt.Len())
	for _, p := range pt.pieces {
		switch p.buf {
		case bufOriginal:
			out = append(out, pt.original[p.offset:p.offset+p.length]...)
		case bufAdd:
			out = append(out, pt.add[p.offset:p.offset+p.length]...)
		}
	}
	return string(out)
}

// Insert appends text to the add buffer and splices a new piece in at pos.
// Callers bounds-check pos against Len() first.
func (pt *PieceTable) Insert(pos int, text string) {
	r := []rune(text)
	if len(r) == 0 {
		return
	}
	added := piece{buf: bufAdd, offset: len(pt.add), length: len(r)}
	pt.add = append(pt.add, r...)

	idx, offset := pt.locate(pos)
	if idx >= len(pt.pieces) {
		pt.pieces = append(pt.pieces, added)
		return
	}

	cur := pt.pieces[idx]
	out := make([]piece, 0, len(pt.pieces)+2)
	out = append(out, pt.pieces[:idx]...)
	if offset > 0 {
		out = append(out, piece{buf: cur.buf, offset: cur.offset, length: offset})
	}
	out = append(out, added)
	if cur.length-offset > 0 {
		out = append(out, piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset})
	}
	out = append(out, pt.pieces[idx+1:]...)
	pt.pieces = out
}

// Delete removes length runes starting at pos, splitting or dropping pieces
// along the way. Callers bounds-check pos+length against Len() first.
func (pt *PieceTable) Delete(pos, length int) {
	remain := length
	idx, offset := pt.locate(pos)

	for remain > 0 && idx < len(pt.pieces) {
		cur := &pt.pieces[idx]
		can := cur.length - offset
		if can <= 0 {
			idx++
			offset = 0
			continue
		}
		take := remain
		if take > can {
			take = can
		}

		if offset == 0 && take == cur.length {
			pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
			// idx now points at the piece that followed the removed one.
		} else {
			leftLen := offset
			rightLen := cur.length - offset - take
			out := make([]piece, 0, len(pt.pieces)+1)
			out = append(out, pt.pieces[:idx]...)
			if leftLen > 0 {
				out = append(out, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
			}
			if rightLen > 0 {
				out = append(out, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
			}
			out = append(out, pt.pieces[idx+1:]...)
			pt.pieces = out
		}
		remain -= take
	}
}

// locate maps a logical position to the piece index holding it plus the
// offset inside that piece. pos == Len() maps past the last piece.
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
