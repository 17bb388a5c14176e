package stream

// Pipe is a bounded byte FIFO with non-blocking transfer semantics.
// The zero value is unusable; create pipes with New.
type Pipe struct {
	buf  []byte
	head int // Next byte to Take
	tail int // Next free slot
	n    int
}

// New creates a pipe holding up to capacity bytes.
func New(capacity int) *Pipe {
	if capacity < 1 {
		capacity = 1
	}
	return &Pipe{buf: make([]byte, capacity)}
}

// Offer attempts to push one byte. It reports whether the byte was
// accepted; false models a deasserted ready line.
func (p *Pipe) Offer(b byte) bool {
	if p.n == len(p.buf) {
		return false
	}
	p.buf[p.tail] = b
	p.tail++
	if p.tail == len(p.buf) {
		p.tail = 0
	}
	p.n++
	return true
}

// Take attempts to pop one byte. The second return models the valid line:
// false means the pipe held nothing this tick.
func (p *Pipe) Take() (byte, bool) {
	if p.n == 0 {
		return 0, false
	}
	b := p.buf[p.head]
	p.head++
	if p.head == len(p.buf) {
		p.head = 0
	}
	p.n--
	return b, true
}

// Peek returns the next byte without consuming it.
func (p *Pipe) Peek() (byte, bool) {
	if p.n == 0 {
		return 0, false
	}
	return p.buf[p.head], true
}

// Len returns the number of buffered bytes.
func (p *Pipe) Len() int {
	return p.n
}

// Free returns the remaining capacity.
func (p *Pipe) Free() int {
	return len(p.buf) - p.n
}

// Cap returns the total capacity.
func (p *Pipe) Cap() int {
	return len(p.buf)
}

// Empty returns true when no bytes are buffered.
func (p *Pipe) Empty() bool {
	return p.n == 0
}

// OfferAll pushes bytes from data until the pipe fills, returning the
// number accepted.
func (p *Pipe) OfferAll(data []byte) int {
	accepted := 0
	for _, b := range data {
		if !p.Offer(b) {
			break
		}
		accepted++
	}
	return accepted
}

// TakeInto pops up to len(buf) bytes into buf, returning the number moved.
func (p *Pipe) TakeInto(buf []byte) int {
	moved := 0
	for moved < len(buf) {
		b, ok := p.Take()
		if !ok {
			break
		}
		buf[moved] = b
		moved++
	}
	return moved
}

// Reset discards all buffered bytes.
func (p *Pipe) Reset() {
	p.head = 0
	p.tail = 0
	p.n = 0
}
