package dispatch

// Slice is a contiguous range of the pending recipient list owned by one
// account: recipients[Start:End].
type Slice struct {
	Start int
	End   int
}

// Len returns the number of recipients in the slice.
func (s Slice) Len() int { return s.End - s.Start }

// Distribute splits n pending recipients across accounts in contiguous
// ceil-sized slices: account i owns [i*per, min((i+1)*per, n)) with
// per = ceil(n/accounts). Earlier accounts fill first; trailing accounts
// may get empty slices. Deterministic and order-preserving.
func Distribute(n, accounts int) []Slice {
	if accounts <= 0 {
		return nil
	}
	out := make([]Slice, accounts)
	if n <= 0 {
		return out
	}

	per := (n + accounts - 1) / accounts
	for i := 0; i < accounts; i++ {
		start := i * per
		if start > n {
			start = n
		}
		end := start + per
		if end > n {
			end = n
		}
		out[i] = Slice{Start: start, End: end}
	}
	return out
}
