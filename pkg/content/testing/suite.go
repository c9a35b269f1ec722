package testing

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/marmos91/dittoserve/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite checks the ContentStore contract against any backend that
// can also be written to, so the same expectations hold for the filesystem,
// badger and future stores.
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &contenttesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) content.WritableContentStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore returns a fresh, empty store for each subtest.
	NewStore func(t *testing.T) content.WritableContentStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("ReadAfterWrite", suite.testReadAfterWrite)
	t.Run("Missing", suite.testMissing)
	t.Run("EmptyContent", suite.testEmptyContent)
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("LargeContent", suite.testLargeContent)
	t.Run("CancelledContext", suite.testCancelledContext)
	t.Run("ConcurrentReads", suite.testConcurrentReads)
}

func (suite *StoreTestSuite) newStore(t *testing.T) content.WritableContentStore {
	t.Helper()
	store := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testContext() context.Context {
	return context.Background()
}

func (suite *StoreTestSuite) testReadAfterWrite(t *testing.T) {
	store := suite.newStore(t)
	id := content.ContentID("/www/hello.txt")

	mustWriteContent(t, store, id, []byte("hello"))

	assert.Equal(t, uint64(5), mustGetSize(t, store, id))
	assert.Equal(t, []byte("hello"), mustReadContent(t, store, id))

	exists, err := store.ContentExists(testContext(), id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func (suite *StoreTestSuite) testMissing(t *testing.T) {
	store := suite.newStore(t)
	id := content.ContentID("/www/missing.txt")

	_, err := store.GetContentSize(testContext(), id)
	AssertErrorIs(t, content.ErrContentNotFound, err)

	_, err = store.ReadContent(testContext(), id)
	AssertErrorIs(t, content.ErrContentNotFound, err)

	exists, err := store.ContentExists(testContext(), id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *StoreTestSuite) testEmptyContent(t *testing.T) {
	store := suite.newStore(t)
	id := content.ContentID("/www/empty.txt")

	mustWriteContent(t, store, id, []byte{})

	assert.Equal(t, uint64(0), mustGetSize(t, store, id))
	assert.Empty(t, mustReadContent(t, store, id))
}

func (suite *StoreTestSuite) testOverwrite(t *testing.T) {
	store := suite.newStore(t)
	id := content.ContentID("/www/page.html")

	mustWriteContent(t, store, id, []byte("first version"))
	mustWriteContent(t, store, id, []byte("v2"))

	assert.Equal(t, uint64(2), mustGetSize(t, store, id))
	assert.Equal(t, []byte("v2"), mustReadContent(t, store, id))
}

func (suite *StoreTestSuite) testLargeContent(t *testing.T) {
	store := suite.newStore(t)
	id := content.ContentID("/www/large.bin")
	data := bytes.Repeat([]byte("0123456789abcdef"), 4096)

	mustWriteContent(t, store, id, data)

	assert.Equal(t, uint64(len(data)), mustGetSize(t, store, id))
	assert.Equal(t, data, mustReadContent(t, store, id))
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.newStore(t)
	id := content.ContentID("/www/a.txt")
	mustWriteContent(t, store, id, []byte("a"))

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := store.GetContentSize(ctx, id)
	AssertErrorIs(t, context.Canceled, err)

	_, err = store.ReadContent(ctx, id)
	AssertErrorIs(t, context.Canceled, err)
}

func (suite *StoreTestSuite) testConcurrentReads(t *testing.T) {
	store := suite.newStore(t)
	id := content.ContentID("/www/shared.txt")
	data := []byte("shared between readers")
	mustWriteContent(t, store, id, data)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reader, err := store.ReadContent(testContext(), id)
			if !assert.NoError(t, err) {
				return
			}
			defer reader.Close()

			var buf bytes.Buffer
			_, err = buf.ReadFrom(reader)
			assert.NoError(t, err)
			assert.Equal(t, data, buf.Bytes())
		}()
	}
	wg.Wait()
}
