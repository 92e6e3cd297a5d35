package sstable

// blockReaderFunc opens an Iterator over the data block an index entry's
// value (an encoded BlockHandle) points to.
type blockReaderFunc func(indexValue []byte) Iterator

// twoLevelIterator drives a lazily-constructed data-block iterator with
// an index-block iterator, so a full table scan never holds more than one
// data block in memory at a time.
type twoLevelIterator struct {
	indexIter Iterator
	blockFunc blockReaderFunc
	dataIter  Iterator // nil until the first time it's needed
	err       error
}

func newTwoLevelIterator(indexIter Iterator, blockFunc blockReaderFunc) Iterator {
	return &twoLevelIterator{indexIter: indexIter, blockFunc: blockFunc}
}

func (it *twoLevelIterator) setDataIterator(iter Iterator) {
	if it.dataIter != nil {
		it.dataIter.Close()
	}
	it.dataIter = iter
}

// initDataBlock opens the data iterator for the index iterator's current
// position, closing the previous data iterator; the block is reopened
// even if the index iterator has not moved.
func (it *twoLevelIterator) initDataBlock() {
	if !it.indexIter.Valid() {
		it.setDataIterator(nil)
		return
	}
	it.setDataIterator(it.blockFunc(it.indexIter.Value()))
}

func (it *twoLevelIterator) skipEmptyDataBlocksForward() {
	for it.dataIter == nil || !it.dataIter.Valid() {
		if it.dataIter != nil {
			if err := it.dataIter.Err(); err != nil {
				it.err = err
			}
		}
		if !it.indexIter.Valid() {
			it.setDataIterator(nil)
			return
		}
		it.indexIter.Next()
		it.initDataBlock()
		if it.dataIter != nil {
			it.dataIter.SeekToFirst()
		}
	}
}

// skipEmptyDataBlocksBackward is skipEmptyDataBlocksForward's mirror for
// Prev: an index entry whose data block turns out empty (or whose
// iterator errored) is skipped by walking the index iterator backward
// and reopening the data block positioned at its last entry.
func (it *twoLevelIterator) skipEmptyDataBlocksBackward() {
	for it.dataIter == nil || !it.dataIter.Valid() {
		if it.dataIter != nil {
			if err := it.dataIter.Err(); err != nil {
				it.err = err
			}
		}
		if !it.indexIter.Valid() {
			it.setDataIterator(nil)
			return
		}
		it.indexIter.Prev()
		it.initDataBlock()
		if it.dataIter != nil {
			it.dataIter.SeekToLast()
		}
	}
}

func (it *twoLevelIterator) SeekToFirst() {
	it.indexIter.SeekToFirst()
	it.initDataBlock()
	if it.dataIter != nil {
		it.dataIter.SeekToFirst()
	}
	it.skipEmptyDataBlocksForward()
}

func (it *twoLevelIterator) SeekToLast() {
	it.indexIter.SeekToLast()
	it.initDataBlock()
	if it.dataIter != nil {
		it.dataIter.SeekToLast()
	}
	it.skipEmptyDataBlocksBackward()
}

func (it *twoLevelIterator) Seek(target []byte) {
	it.indexIter.Seek(target)
	it.initDataBlock()
	if it.dataIter != nil {
		it.dataIter.Seek(target)
	}
	it.skipEmptyDataBlocksForward()
}

func (it *twoLevelIterator) Next() {
	it.dataIter.Next()
	it.skipEmptyDataBlocksForward()
}

func (it *twoLevelIterator) Prev() {
	it.dataIter.Prev()
	it.skipEmptyDataBlocksBackward()
}

func (it *twoLevelIterator) Valid() bool {
	return it.dataIter != nil && it.dataIter.Valid()
}

func (it *twoLevelIterator) Key() []byte {
	return it.dataIter.Key()
}

func (it *twoLevelIterator) Value() []byte {
	return it.dataIter.Value()
}

func (it *twoLevelIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if err := it.indexIter.Err(); err != nil {
		return err
	}
	if it.dataIter != nil {
		return it.dataIter.Err()
	}
	return nil
}

func (it *twoLevelIterator) Close() error {
	if it.dataIter != nil {
		it.dataIter.Close()
	}
	return it.indexIter.Close()
}
