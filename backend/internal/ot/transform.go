package ot

// Transform derives the adjusted form of a, assuming b has already been
// applied to the document both operations were produced against. Applying
// Transform(a, b) after b and Transform(b, a) after a must yield byte-identical
// content; the tests assert this for every case pair.
func Transform(a, b Operation) Operation {
	if b.IsNoop() {
		return a
	}
	switch a.Kind {
	case KindInsert:
		switch b.Kind {
		case KindInsert:
			return transformInsertInsert(a, b)
		case KindDelete:
			return transformInsertDelete(a, b)
		}
	case KindDelete:
		switch b.Kind {
		case KindInsert:
			return transformDeleteInsert(a, b)
		case KindDelete:
			return transformDeleteDelete(a, b)
		}
	}
	return a
}

// Equal-position insert conflicts break deterministically: the lower userId
// lands first on every replica, with the operation id as the secondary key so
// the ordering is total even for two operations from the same user.
func insertWins(b, a Operation) bool {
	if b.UserID != a.UserID {
		return b.UserID < a.UserID
	}
	return b.ID < a.ID
}

func transformInsertInsert(a, b Operation) Operation {
	if b.Position < a.Position || (b.Position == a.Position && insertWins(b, a)) {
		a.Position += b.Span()
	}
	return a
}

func transformInsertDelete(a, b Operation) Operation {
	bEnd := b.Position + b.Length
	switch {
	case a.Position >= bEnd:
		// Deleted range lies entirely before the insert.
		a.Position -= b.Length
	case a.Position > b.Position:
		// Insert point fell inside the removed range. The text around it is
		// gone on the other replica, so the insert collapses to a no-op at
		// the start of the deletion; transformDeleteInsert grows the delete
		// by the same span to keep both orders identical.
		a.Position = b.Position
		a.Content = ""
	}
	return a
}

func transformDeleteInsert(a, b Operation) Operation {
	aEnd := a.Position + a.Length
	switch {
	case b.Position <= a.Position:
		a.Position += b.Span()
	case b.Position < aEnd:
		// Insert landed inside the range being deleted; swallow it.
		a.Length += b.Span()
	}
	return a
}

func transformDeleteDelete(a, b Operation) Operation {
	aEnd := a.Position + a.Length
	bEnd := b.Position + b.Length
	switch {
	case aEnd <= b.Position:
		// a entirely before b: unchanged.
	case bEnd <= a.Position:
		a.Position -= b.Length
	default:
		// Ranges overlap: shrink a by the portion b already removed. Full
		// containment degenerates a to a zero-length no-op.
		overlap := minInt(aEnd, bEnd) - maxInt(a.Position, b.Position)
		a.Position = minInt(a.Position, b.Position)
		a.Length -= overlap
	}
	return a
}

// TransformAgainst folds Transform over the committed log entries the
// submitting client had not yet seen, in ascending serverSequence order.
// Entries at or below the operation's base version are skipped.
func TransformAgainst(op Operation, log []Operation) Operation {
	for _, committed := range log {
		if committed.ServerSeq <= op.BaseVersion {
			continue
		}
		op = Transform(op, committed)
	}
	return op
}

// ClampStaleInsert anchors a transformed insert back to the end of the
// document when the accumulated shift pushed it past the authoritative
// length. Only transformed operations can land there: a client inserting at
// the end of its own snapshot races concurrent inserts, and the combined
// shift overshoots. Fresh out-of-bounds inserts are rejected on append
// instead, so callers apply this only after at least one transformation.
func ClampStaleInsert(op Operation, docLen int) Operation {
	if op.Kind == KindInsert && op.Position > docLen {
		op.Position = docLen
	}
	return op
}

// TransformBatch adjusts each operation against the already-adjusted
// operations preceding it in the same batch, so the batch can then be
// integrated against the server log and applied sequentially.
func TransformBatch(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	copy(out, ops)
	for i := 1; i < len(out); i++ {
		for j := 0; j < i; j++ {
			out[i] = Transform(out[i], out[j])
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
