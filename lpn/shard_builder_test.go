package lpn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardBuilder(t *testing.T) {
	t.Run("groups_by_shard", func(t *testing.T) {
		b := NewShardBuilder()
		b.AddAll("a.xlsx", []Record{
			{LPN: "lpn0000000001", Fields: map[string]any{}},
			{LPN: "AB12", Fields: map[string]any{}},
			{LPN: "x", Fields: map[string]any{}},
		})

		assert.Equal(t, []string{"AB", "LP", "X0"}, b.Touched())
		assert.Equal(t, 3, b.Parsed())

		rec, ok := b.Buffer("LP")["LPN0000000001"]
		require.True(t, ok, "records are keyed by canonical id")
		assert.Equal(t, "LPN0000000001", rec.LPN)
		assert.Equal(t, "a.xlsx", rec.SourceFile)
	})

	t.Run("last_record_wins", func(t *testing.T) {
		b := NewShardBuilder()
		b.Add("first.xlsx", Record{LPN: "LPN0000000001", RowNumber: 2, Fields: map[string]any{"Qty": 1.0}})
		b.Add("second.xlsx", Record{LPN: " lpn0000000001 ", RowNumber: 9, Fields: map[string]any{"Qty": 5.0}})

		buf := b.Buffer("LP")
		require.Len(t, buf, 1)
		rec := buf["LPN0000000001"]
		assert.Equal(t, 9, rec.RowNumber)
		assert.Equal(t, "second.xlsx", rec.SourceFile)
		assert.Equal(t, 5.0, rec.Fields["Qty"])
		assert.Equal(t, 2, b.Parsed())
		assert.Equal(t, []string{"first.xlsx", "second.xlsx"}, b.Files())
	})

	t.Run("empty_identifier_rejected", func(t *testing.T) {
		b := NewShardBuilder()
		assert.False(t, b.Add("a.xlsx", Record{LPN: "  "}))
		assert.Empty(t, b.Touched())
		assert.Equal(t, 0, b.Parsed())
	})

	t.Run("file_without_records_is_listed", func(t *testing.T) {
		b := NewShardBuilder()
		b.AddFile("empty.xlsx")
		assert.Equal(t, []string{"empty.xlsx"}, b.Files())
		assert.Empty(t, b.Touched())
	})
}
