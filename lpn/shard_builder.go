package lpn

import "sort"

// ShardBuilder buffers one upload batch by shard key and canonical identifier.
// A later record for the same identifier replaces the earlier one.
type ShardBuilder struct {
	buffers map[string]map[string]Record
	files   map[string]struct{}
	parsed  int
}

// NewShardBuilder returns an empty batch.
func NewShardBuilder() *ShardBuilder {
	return &ShardBuilder{
		buffers: make(map[string]map[string]Record),
		files:   make(map[string]struct{}),
	}
}

// AddFile registers sourceFile as part of the batch even if it yields no records.
func (b *ShardBuilder) AddFile(sourceFile string) {
	b.files[sourceFile] = struct{}{}
}

// Add places rec into its shard buffer, stamping the canonical LPN and the
// source file. It returns false for records whose LPN normalizes to empty.
func (b *ShardBuilder) Add(sourceFile string, rec Record) bool {
	id := Normalize(rec.LPN)
	if id == "" {
		return false
	}
	b.AddFile(sourceFile)

	rec.LPN = id
	rec.SourceFile = sourceFile

	shard := ShardKeyFor(id)
	buf, ok := b.buffers[shard]
	if !ok {
		buf = make(map[string]Record)
		b.buffers[shard] = buf
	}
	buf[id] = rec
	b.parsed++
	return true
}

// AddAll adds every record from sourceFile.
func (b *ShardBuilder) AddAll(sourceFile string, recs []Record) {
	b.AddFile(sourceFile)
	for _, rec := range recs {
		b.Add(sourceFile, rec)
	}
}

// Touched returns the shard keys holding at least one record, sorted.
func (b *ShardBuilder) Touched() []string {
	keys := make([]string, 0, len(b.buffers))
	for k := range b.buffers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Buffer returns the records buffered for shard keyed by canonical LPN.
func (b *ShardBuilder) Buffer(shard string) map[string]Record {
	return b.buffers[shard]
}

// Files returns the source files in the batch, sorted.
func (b *ShardBuilder) Files() []string {
	files := make([]string, 0, len(b.files))
	for f := range b.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Parsed counts accepted records, including ones later replaced within the batch.
func (b *ShardBuilder) Parsed() int {
	return b.parsed
}
