package ledgercache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func expectValue[K comparable, V any](c *LedgerCache[K, V], key K, expected V) {
	GinkgoHelper()

	val, ok := c.Get(key)
	Expect(ok).Should(BeTrue(), "key %v should be present", key)
	Expect(val).Should(Equal(expected))
}

func expectMissing[K comparable, V any](c *LedgerCache[K, V], key K) {
	GinkgoHelper()

	_, ok := c.Get(key)
	Expect(ok).Should(BeFalse(), "key %v should be missing", key)
}

var _ = Describe("Ledger cache", func() {
	var (
		clock *fakeClock
		sut   *LedgerCache[string, string]
	)

	BeforeEach(func() {
		clock = newFakeClock()
		sut = newTestCache[string, string](Options[string]{}, clock)
	})

	Describe("Basic operations", func() {
		When("cache was created", func() {
			It("should be empty", func() {
				Expect(sut.Len()).Should(BeZero())
				expectMissing(sut, "key1")
			})

			It("should be unbounded without capacity", func() {
				Expect(sut.Capacity()).Should(BeNumerically(">", uint64(1)<<62))
				Expect(sut.EntryTTL()).Should(BeZero())
			})

			It("should treat a negative TTL as no expiration", func() {
				c := NewCache[string, string](Options[string]{EntryTTL: -time.Second})
				Expect(c.EntryTTL()).Should(BeZero())
			})
		})

		When("value is set", func() {
			It("should return the value", func() {
				sut.Set("key1", "val1")

				expectValue(sut, "key1", "val1")
				Expect(sut.Len()).Should(Equal(1))
				Expect(sut.ContainsKey("key1")).Should(BeTrue())
				Expect(sut.MustGet("key1")).Should(Equal("val1"))
			})
		})

		When("value is overwritten", func() {
			It("should return the new value and tombstone the old entry", func() {
				sut.Set("key1", "val1")
				old, _ := sut.load("key1")

				sut.Set("key1", "val2")

				expectValue(sut, "key1", "val2")
				Expect(sut.Len()).Should(Equal(1))
				Expect(old.isDead(clock.now())).Should(BeTrue())
				Expect(old.val).Should(BeEmpty())
			})
		})

		When("key is unknown", func() {
			It("MustGet should return ErrKeyNotFound", func() {
				_, err := sut.MustGet("unknown")
				Expect(err).Should(MatchError(ErrKeyNotFound))
				Expect(err.Error()).Should(ContainSubstring("unknown"))
			})

			It("ContainsKey should return false", func() {
				Expect(sut.ContainsKey("unknown")).Should(BeFalse())
			})
		})

		It("should work with non string keys and values", func() {
			c := NewCache[int, []byte](Options[int]{})
			c.Set(1, []byte{1, 2})

			expectValue(c, 1, []byte{1, 2})
		})
	})

	Describe("Lookup", func() {
		It("should return the metadata without touching the entry", func() {
			c := newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
			created := clock.now()

			c.Set("key1", "val1")
			clock.advance(10 * time.Second)

			item, ok := c.Lookup("key1")
			Expect(ok).Should(BeTrue())
			Expect(item.Value).Should(Equal("val1"))
			Expect(item.CreatedAt).Should(BeTemporally("==", created))
			Expect(item.ExpiresAt).Should(BeTemporally("==", created.Add(time.Minute)))
			Expect(item.LastUsedAt).Should(BeTemporally("==", created))

			expectValue(c, "key1", "val1")

			item, ok = c.Lookup("key1")
			Expect(ok).Should(BeTrue())
			Expect(item.LastUsedAt).Should(BeTemporally("==", created.Add(10*time.Second)))
		})

		It("should report a never expiring entry with zero ExpiresAt", func() {
			sut.Set("key1", "val1")

			item, ok := sut.Lookup("key1")
			Expect(ok).Should(BeTrue())
			Expect(item.ExpiresAt.IsZero()).Should(BeTrue())
		})

		It("should not find missing or expired entries", func() {
			c := newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
			c.Set("key1", "val1")
			clock.advance(time.Minute)

			_, ok := c.Lookup("key1")
			Expect(ok).Should(BeFalse())

			_, ok = c.Lookup("unknown")
			Expect(ok).Should(BeFalse())
		})
	})

	Describe("Expiration", func() {
		var c *LedgerCache[string, string]

		BeforeEach(func() {
			c = newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
		})

		It("should return the value before the entry expires", func() {
			c.Set("key1", "val1")
			clock.advance(time.Minute - time.Nanosecond)

			expectValue(c, "key1", "val1")
		})

		It("should treat the entry as absent at the expiration time", func() {
			c.Set("key1", "val1")
			clock.advance(time.Minute)

			expectMissing(c, "key1")
			Expect(c.ContainsKey("key1")).Should(BeFalse())
		})

		It("should detach an expired entry found by Get", func() {
			c.Set("key1", "val1")
			clock.advance(2 * time.Minute)

			Expect(c.Len()).Should(Equal(1))
			expectMissing(c, "key1")
			Expect(c.Len()).Should(BeZero())
		})

		It("should restart the TTL when the value is overwritten", func() {
			c.Set("key1", "val1")
			clock.advance(40 * time.Second)
			c.Set("key1", "val2")
			clock.advance(40 * time.Second)

			expectValue(c, "key1", "val2")
		})

		It("should expire with the wall clock", func() {
			c := NewCache[string, string](Options[string]{EntryTTL: 50 * time.Millisecond})

			Expect(c.Add("key1", "val1")).Should(Succeed())
			expectValue(c, "key1", "val1")

			time.Sleep(51 * time.Millisecond)

			expectMissing(c, "key1")
		})
	})

	Describe("Add", func() {
		It("should add a new entry", func() {
			Expect(sut.Add("key1", "val1")).Should(Succeed())
			Expect(sut.TryAdd("key2", "val2")).Should(BeTrue())

			expectValue(sut, "key1", "val1")
			expectValue(sut, "key2", "val2")
		})

		It("should refuse a live key and keep its value", func() {
			sut.Set("key1", "val1")

			err := sut.Add("key1", "other")
			Expect(err).Should(MatchError(ErrDuplicateKey))
			Expect(err.Error()).Should(ContainSubstring("key1"))
			Expect(sut.TryAdd("key1", "other")).Should(BeFalse())

			expectValue(sut, "key1", "val1")
			Expect(sut.Len()).Should(Equal(1))
		})

		It("should replace an expired entry", func() {
			c := newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
			c.Set("key1", "val1")
			clock.advance(time.Minute)

			Expect(c.Add("key1", "val2")).Should(Succeed())

			expectValue(c, "key1", "val2")
			Expect(c.Len()).Should(Equal(1))
		})

		It("should add a removed key again", func() {
			sut.Set("key1", "val1")
			sut.Remove("key1")

			Expect(sut.Add("key1", "val2")).Should(Succeed())
			expectValue(sut, "key1", "val2")
		})
	})

	Describe("GetOrAdd", func() {
		It("should insert first and return the existing value afterwards", func() {
			inserted, val := sut.GetOrAdd("key1", "first")
			Expect(inserted).Should(BeTrue())
			Expect(val).Should(Equal("first"))

			inserted, val = sut.GetOrAdd("key1", "second")
			Expect(inserted).Should(BeFalse())
			Expect(val).Should(Equal("first"))

			Expect(sut.Len()).Should(Equal(1))
		})

		It("should replace an expired entry", func() {
			c := newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
			c.Set("key1", "old")
			clock.advance(time.Hour)

			inserted, val := c.GetOrAdd("key1", "new")
			Expect(inserted).Should(BeTrue())
			Expect(val).Should(Equal("new"))
			Expect(c.Len()).Should(Equal(1))
		})

		It("should let exactly one of concurrent callers insert", func() {
			const callers = 64

			var (
				wg       sync.WaitGroup
				inserts  atomic.Int32
				start    = make(chan struct{})
				results  = make([]string, callers)
				c        = NewCache[string, string](Options[string]{})
				winnerMu sync.Mutex
				winner   string
			)

			for i := 0; i < callers; i++ {
				wg.Add(1)

				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()

					<-start

					own := fmt.Sprintf("val%d", i)

					inserted, val := c.GetOrAdd("key", own)
					if inserted {
						inserts.Add(1)

						Expect(val).Should(Equal(own))

						winnerMu.Lock()
						winner = own
						winnerMu.Unlock()
					}

					results[i] = val
				}(i)
			}

			close(start)
			wg.Wait()

			Expect(inserts.Load()).Should(BeEquivalentTo(1))
			Expect(c.Len()).Should(Equal(1))

			for _, r := range results {
				Expect(r).Should(Equal(winner))
			}
		})
	})

	Describe("Remove", func() {
		It("should return the value of a live entry", func() {
			sut.Set("key1", "val1")

			val, ok := sut.Remove("key1")
			Expect(ok).Should(BeTrue())
			Expect(val).Should(Equal("val1"))
			Expect(sut.Len()).Should(BeZero())
			expectMissing(sut, "key1")

			_, ok = sut.Remove("key1")
			Expect(ok).Should(BeFalse())
		})

		It("should clean up but not report an expired entry", func() {
			c := newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
			c.Set("key1", "val1")
			clock.advance(time.Minute)

			_, ok := c.Remove("key1")
			Expect(ok).Should(BeFalse())
			Expect(c.Len()).Should(BeZero())
		})

		It("should not find an unknown key", func() {
			_, ok := sut.Remove("unknown")
			Expect(ok).Should(BeFalse())
		})

		Describe("RemoveFunc", func() {
			It("should remove only a matching value", func() {
				sut.Set("key1", "val1")

				Expect(sut.RemoveFunc("key1", func(v string) bool { return v == "other" })).Should(BeFalse())
				expectValue(sut, "key1", "val1")

				Expect(sut.RemoveFunc("key1", func(v string) bool { return v == "val1" })).Should(BeTrue())
				expectMissing(sut, "key1")
			})
		})
	})

	Describe("Capacity", func() {
		It("should evict the oldest writes first", func() {
			c := NewCache[int, int](Options[int]{Capacity: 100})

			for i := 0; i < 150; i++ {
				c.Set(i, i)
			}

			Expect(c.Len()).Should(Equal(100))

			for i := 0; i < 50; i++ {
				Expect(c.ContainsKey(i)).Should(BeFalse(), "key %d should be evicted", i)
			}

			for i := 50; i < 150; i++ {
				expectValue(c, i, i)
			}
		})

		It("should order by the latest write of a key", func() {
			c := NewCache[string, int](Options[string]{Capacity: 3})

			c.Set("a", 1)
			c.Set("b", 2)
			c.Set("c", 3)
			c.Set("a", 4)
			c.Set("d", 5)

			Expect(c.Len()).Should(Equal(3))
			expectValue(c, "a", 4)
			expectMissing(c, "b")
			expectValue(c, "c", 3)
			expectValue(c, "d", 5)
		})

		It("should stay within capacity under concurrent writes", func() {
			c := NewCache[int, int](Options[int]{Capacity: 100})

			var wg sync.WaitGroup

			for w := 0; w < 8; w++ {
				wg.Add(1)

				go func(w int) {
					defer wg.Done()

					for i := 0; i < 1000; i++ {
						c.Set(w*1000+i, i)
					}
				}(w)
			}

			wg.Wait()

			Eventually(c.Len).Should(BeNumerically("<=", 100))
		})

		It("should notify about evicted keys", func() {
			var evicted []string

			c := NewCache[string, int](Options[string]{
				Capacity: 2,
				OnEvictedFn: func(key string) {
					evicted = append(evicted, key)
				},
			})

			c.Set("a", 1)
			c.Set("b", 2)
			c.Set("c", 3)
			c.Set("d", 4)

			Expect(evicted).Should(Equal([]string{"a", "b"}))
		})
	})

	Describe("Cleanup", func() {
		It("should drop expired entries while under capacity", func() {
			c := newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
			c.Set("a", "1")
			c.Set("b", "2")
			clock.advance(time.Minute)

			Expect(c.Cleanup()).Should(Equal(2))
			Expect(c.Len()).Should(BeZero())
		})

		It("should stop at the first live entry", func() {
			c := newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
			c.Set("a", "1")
			clock.advance(30 * time.Second)
			c.Set("b", "2")
			clock.advance(40 * time.Second)

			Expect(c.Cleanup()).Should(Equal(1))
			Expect(c.Len()).Should(Equal(1))
			expectValue(c, "b", "2")
		})

		It("should skip records of superseded and removed entries", func() {
			sut.Set("a", "1")
			sut.Set("a", "2")
			sut.Set("b", "3")
			sut.Remove("b")

			Expect(sut.Cleanup()).Should(BeZero())
			expectValue(sut, "a", "2")
			Expect(sut.ledger.len()).Should(Equal(2))
		})

		It("should run periodically until the context is done", func() {
			c := NewCache[string, string](Options[string]{EntryTTL: 10 * time.Millisecond})

			for i := 0; i < 5; i++ {
				c.Set(fmt.Sprintf("key%d", i), "val")
			}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			go func() {
				defer close(done)

				c.RunPeriodicCleanup(ctx, 5*time.Millisecond)
			}()

			Eventually(c.Len, "1s").Should(BeZero())

			cancel()
			Eventually(done).Should(BeClosed())
		})
	})

	Describe("Ledger compaction", func() {
		It("should bound the ledger under repeated overwrites", func() {
			for i := 0; i < 10_000; i++ {
				sut.Set("key", fmt.Sprintf("val%d", i))
			}

			Expect(sut.ledger.len()).Should(BeNumerically("<=", compactFactor*minCompactLedgerLen+1))
			expectValue(sut, "key", "val9999")
		})

		It("should detach expired entries nothing else would reach", func() {
			var evicted atomic.Int32

			c := newTestCache[string, string](Options[string]{
				EntryTTL:    time.Minute,
				OnEvictedFn: func(string) { evicted.Add(1) },
			}, clock)

			for i := 0; i < 10; i++ {
				c.Set(fmt.Sprintf("key%d", i), "val")
			}

			clock.advance(time.Minute)

			for i := 0; i < 200; i++ {
				c.Set("hot", "val")
			}

			Expect(c.Len()).Should(Equal(1))
			Expect(evicted.Load()).Should(BeEquivalentTo(10))
		})
	})

	Describe("Hooks", func() {
		It("should report hits, misses and the size after writes", func() {
			var (
				hits, misses []string
				sizes        []int
			)

			c := NewCache[string, string](Options[string]{
				OnCacheHitFn:  func(key string) { hits = append(hits, key) },
				OnCacheMissFn: func(key string) { misses = append(misses, key) },
				OnAfterPutFn:  func(newSize int) { sizes = append(sizes, newSize) },
			})

			c.Set("a", "1")
			c.Set("b", "2")
			c.Set("a", "3")
			c.Get("a")
			c.Get("x")

			Expect(hits).Should(Equal([]string{"a"}))
			Expect(misses).Should(Equal([]string{"x"}))
			Expect(sizes).Should(Equal([]int{1, 2, 2}))
		})

		It("should report the size after removals", func() {
			var sizes []int

			c := newTestCache[string, string](Options[string]{
				EntryTTL:    time.Minute,
				OnRemovedFn: func(newSize int) { sizes = append(sizes, newSize) },
			}, clock)

			c.Set("a", "1")
			c.Set("b", "2")
			c.Set("c", "3")
			c.Set("d", "4")

			c.Remove("a")
			c.Remove("missing")
			Expect(c.RemoveFunc("b", func(v string) bool { return v == "other" })).Should(BeFalse())
			Expect(c.RemoveFunc("b", func(v string) bool { return v == "2" })).Should(BeTrue())
			Expect(sizes).Should(Equal([]int{3, 2}))

			clock.advance(time.Hour)

			expectMissing(c, "c")

			_, ok := c.Remove("d")
			Expect(ok).Should(BeFalse())

			Expect(sizes).Should(Equal([]int{3, 2, 1, 0}))
			Expect(c.Len()).Should(BeZero())
		})
	})

	Describe("Iteration", func() {
		var c *LedgerCache[string, string]

		BeforeEach(func() {
			c = newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
		})

		It("should visit only live entries", func() {
			c.Set("expired", "x")
			clock.advance(30 * time.Second)
			c.Set("a", "1")
			c.Set("b", "2")
			c.Set("removed", "y")
			c.Remove("removed")
			clock.advance(30 * time.Second)

			entries := map[string]string{}
			for k, v := range c.All() {
				entries[k] = v
			}

			Expect(entries).Should(Equal(map[string]string{"a": "1", "b": "2"}))

			var keys, values []string
			for k := range c.Keys() {
				keys = append(keys, k)
			}

			for v := range c.Values() {
				values = append(values, v)
			}

			Expect(keys).Should(ConsistOf("a", "b"))
			Expect(values).Should(ConsistOf("1", "2"))
		})

		It("should stop when the consumer stops", func() {
			for i := 0; i < 10; i++ {
				c.Set(fmt.Sprintf("key%d", i), "val")
			}

			visited := 0
			for range c.All() {
				visited++

				if visited == 3 {
					break
				}
			}

			Expect(visited).Should(Equal(3))
		})

		It("should be lazy", func() {
			seq := c.All()

			c.Set("late", "1")

			entries := map[string]string{}
			for k, v := range seq {
				entries[k] = v
			}

			Expect(entries).Should(HaveKeyWithValue("late", "1"))
		})
	})

	Describe("CopyTo", func() {
		BeforeEach(func() {
			sut.Set("a", "1")
			sut.Set("b", "2")
		})

		It("should copy all live entries", func() {
			dst := make([]Pair[string, string], 2)

			n, err := sut.CopyTo(dst, 0)
			Expect(err).Should(Succeed())
			Expect(n).Should(Equal(2))
			Expect(dst).Should(ConsistOf(
				Pair[string, string]{Key: "a", Value: "1"},
				Pair[string, string]{Key: "b", Value: "2"},
			))
		})

		It("should copy starting at the index", func() {
			dst := make([]Pair[string, string], 3)

			n, err := sut.CopyTo(dst, 1)
			Expect(err).Should(Succeed())
			Expect(n).Should(Equal(2))
			Expect(dst[0]).Should(BeZero())
			Expect(dst[1:]).Should(ConsistOf(
				Pair[string, string]{Key: "a", Value: "1"},
				Pair[string, string]{Key: "b", Value: "2"},
			))
		})

		It("should fail without copying if the buffer is too small", func() {
			dst := make([]Pair[string, string], 2)

			n, err := sut.CopyTo(dst, 1)
			Expect(err).Should(MatchError(ErrBufferTooSmall))
			Expect(n).Should(BeZero())
			Expect(dst).Should(HaveEach(BeZero()))
		})

		It("should fail on a negative index", func() {
			_, err := sut.CopyTo(make([]Pair[string, string], 5), -1)
			Expect(err).Should(MatchError(ErrBufferTooSmall))
		})
	})

	Describe("Clear", func() {
		It("should remove all entries", func() {
			sut.Set("a", "1")
			sut.Set("b", "2")
			old, _ := sut.load("a")

			sut.Clear()

			Expect(sut.Len()).Should(BeZero())
			Expect(sut.ledger.len()).Should(BeZero())
			Expect(old.isDead(clock.now())).Should(BeTrue())
			expectMissing(sut, "a")

			sut.Set("a", "3")
			expectValue(sut, "a", "3")
		})
	})

	Describe("Concurrent access", func() {
		It("should only ever expose values written for a key", func() {
			c := NewCache[int, int](Options[int]{Capacity: 50, EntryTTL: time.Second})

			var wg sync.WaitGroup

			for w := 0; w < 8; w++ {
				wg.Add(1)

				go func(w int) {
					defer GinkgoRecover()
					defer wg.Done()

					for i := 0; i < 2000; i++ {
						key := (w*7 + i) % 100

						switch i % 5 {
						case 0:
							c.Set(key, key*10)
						case 1:
							c.TryAdd(key, key*10)
						case 2:
							_, val := c.GetOrAdd(key, key*10)
							Expect(val).Should(Equal(key * 10))
						case 3:
							c.Remove(key)
						default:
							if val, ok := c.Get(key); ok {
								Expect(val).Should(Equal(key * 10))
							}
						}
					}
				}(w)
			}

			wg.Wait()

			for k, v := range c.All() {
				Expect(v).Should(Equal(k * 10))
			}

			Eventually(c.Len).Should(BeNumerically("<=", 50))
		})

		It("should let exactly one TryAdd take over an expired slot", func() {
			const (
				rounds  = 20
				callers = 32
			)

			for round := 0; round < rounds; round++ {
				c := newTestCache[string, string](Options[string]{EntryTTL: time.Minute}, clock)
				c.Set("key", "stale")
				clock.advance(time.Hour)

				var (
					wg       sync.WaitGroup
					wins     atomic.Int32
					start    = make(chan struct{})
					winnerMu sync.Mutex
					winner   string
				)

				for i := 0; i < callers; i++ {
					wg.Add(1)

					go func(i int) {
						defer GinkgoRecover()
						defer wg.Done()

						<-start

						own := fmt.Sprintf("val%d", i)

						if c.TryAdd("key", own) {
							wins.Add(1)

							winnerMu.Lock()
							winner = own
							winnerMu.Unlock()
						}
					}(i)
				}

				close(start)
				wg.Wait()

				Expect(wins.Load()).Should(Equal(int32(1)))
				Expect(c.Len()).Should(Equal(1))
				expectValue(c, "key", winner)
			}
		})

		It("should tombstone every superseded entry when distinct values race on one key", func() {
			const (
				writers = 8
				writes  = 200
				readers = 4
			)

			c := NewCache[string, int](Options[string]{})
			c.Set("key", -1)

			initial, _ := c.load("key")

			var (
				wg     sync.WaitGroup
				heldMu sync.Mutex
				held   = []*entry[int]{initial}
				start  = make(chan struct{})
				stop   = make(chan struct{})
			)

			for w := 0; w < writers; w++ {
				wg.Add(1)

				go func(w int) {
					defer GinkgoRecover()
					defer wg.Done()

					<-start

					for i := 0; i < writes; i++ {
						c.Set("key", w*writes+i)
					}
				}(w)
			}

			var readersWg sync.WaitGroup

			for r := 0; r < readers; r++ {
				readersWg.Add(1)

				go func() {
					defer GinkgoRecover()
					defer readersWg.Done()

					<-start

					for {
						select {
						case <-stop:
							return
						default:
						}

						if e, ok := c.load("key"); ok {
							heldMu.Lock()
							held = append(held, e)
							heldMu.Unlock()
						}

						if val, ok := c.Get("key"); ok {
							Expect(val).Should(BeNumerically(">=", -1))
							Expect(val).Should(BeNumerically("<", writers*writes))
						}
					}
				}()
			}

			close(start)
			wg.Wait()
			close(stop)
			readersWg.Wait()

			current, ok := c.load("key")
			Expect(ok).Should(BeTrue())
			Expect(current.isDead(time.Now())).Should(BeFalse())

			Expect(initial.isDead(time.Now())).Should(BeTrue())

			for _, e := range held {
				if e != current {
					Expect(e.isDead(time.Now())).Should(BeTrue())
				}
			}

			Expect(c.Len()).Should(Equal(1))

			val, ok := c.Get("key")
			Expect(ok).Should(BeTrue())
			Expect(val % writes).Should(Equal(writes - 1))
		})
	})
})
