package push_test

import (
	"fmt"
	"testing"

	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var prodChannel = push.Channel{Platform: push.PlatformAPNS, Environment: push.EnvProd}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("id-%d", i)
	}
	return out
}

func TestBatcher(t *testing.T) {
	tables := []struct {
		count   int
		maxSize int
		sizes   []int
	}{
		{0, 100, nil},
		{1, 100, []int{1}},
		{100, 100, []int{100}},
		{250, 100, []int{100, 100, 50}},
		{3, 1, []int{1, 1, 1}},
		{3, 0, []int{1, 1, 1}},
	}

	for _, table := range tables {
		t.Run(fmt.Sprintf("%v/%v", table.count, table.maxSize), func(t *testing.T) {
			b := push.NewBatcher(prodChannel, ids(table.count), table.maxSize, nil)

			var sizes []int
			for {
				batch, ok := b.Next()
				if !ok {
					break
				}
				if batch.Index != len(sizes) {
					t.Errorf("batch index = %v, want %v", batch.Index, len(sizes))
				}
				sizes = append(sizes, len(batch.RegistrationIDs))
			}

			if diff := cmp.Diff(table.sizes, sizes); diff != "" {
				t.Errorf("batch sizes mismatch (-want +got):\n%s", diff)
			}
			if b.Count() != len(table.sizes) {
				t.Errorf("Count() = %v, want %v", b.Count(), len(table.sizes))
			}
		})
	}
}

func TestBatchDoesNotAliasInput(t *testing.T) {
	input := ids(5)
	batches := push.SplitBatches(prodChannel, input, 2, nil)

	batches[0].RegistrationIDs = append(batches[0].RegistrationIDs, "extra")

	if input[2] != "id-2" {
		t.Errorf("appending to a batch overwrote the input: %v", input)
	}
}

func TestSplitBatchesProp(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("batches are bounded and rebuild the input", prop.ForAll(
		func(count int, maxSize int) bool {
			input := ids(count)
			batches := push.SplitBatches(prodChannel, input, maxSize, nil)

			if count == 0 {
				return len(batches) == 0
			}

			var rebuilt []string
			for i, batch := range batches {
				if len(batch.RegistrationIDs) == 0 || len(batch.RegistrationIDs) > maxSize {
					return false
				}
				if batch.Index != i || batch.Offset != len(rebuilt) || batch.Channel != prodChannel {
					return false
				}
				rebuilt = append(rebuilt, batch.RegistrationIDs...)
			}

			return cmp.Equal(input, rebuilt) && len(batches) == (count+maxSize-1)/maxSize
		},
		gen.IntRange(0, 2000).WithLabel("count"),
		gen.IntRange(1, 600).WithLabel("maxSize"),
	))

	properties.TestingRun(t)
}
