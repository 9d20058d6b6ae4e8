package push

//Batch Identifiers sent in one gateway call.
type Batch struct {
	Channel         Channel
	Index           int
	Offset          int
	RegistrationIDs []string
	Payload         *Payload
}

//Batcher Lazily cuts identifiers of one channel into batches of at most maxSize identifiers.
type Batcher struct {
	channel Channel
	ids     []string
	maxSize int
	payload *Payload
	offset  int
	index   int
}

//NewBatcher Creates batcher. maxSize lower than 1 is treated as 1.
func NewBatcher(channel Channel, ids []string, maxSize int, payload *Payload) *Batcher {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Batcher{channel: channel, ids: ids, maxSize: maxSize, payload: payload}
}

//Next Returns next batch, false when all identifiers were handed out.
func (b *Batcher) Next() (Batch, bool) {
	if b.offset >= len(b.ids) {
		return Batch{}, false
	}

	end := b.offset + b.maxSize
	if end > len(b.ids) {
		end = len(b.ids)
	}

	batch := Batch{
		Channel:         b.channel,
		Index:           b.index,
		Offset:          b.offset,
		RegistrationIDs: b.ids[b.offset:end:end],
		Payload:         b.payload,
	}

	b.offset = end
	b.index++

	return batch, true
}

//Count Total number of batches the batcher produces.
func (b *Batcher) Count() int {
	return (len(b.ids) + b.maxSize - 1) / b.maxSize
}

//SplitBatches Collects all batches.
func SplitBatches(channel Channel, ids []string, maxSize int, payload *Payload) []Batch {
	b := NewBatcher(channel, ids, maxSize, payload)
	batches := make([]Batch, 0, b.Count())
	for {
		batch, ok := b.Next()
		if !ok {
			return batches
		}
		batches = append(batches, batch)
	}
}
