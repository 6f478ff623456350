package cmd

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ledgercache/ledgercache/cache/ledgercache"
	"github.com/ledgercache/ledgercache/log"
	"github.com/mroth/weightedrand"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type opKind int

const (
	opGet opKind = iota
	opSet
	opAdd
	opGetOrAdd
	opRemove
)

//nolint:gochecknoglobals
var opNames = map[string]opKind{
	"get":        opGet,
	"set":        opSet,
	"add":        opAdd,
	"get-or-add": opGetOrAdd,
	"remove":     opRemove,
}

type benchOp struct {
	kind opKind
	key  uint64
}

type benchOptions struct {
	workers  int
	ops      int
	keys     uint64
	capacity uint64
	ttl      time.Duration
	zipf     float64
	seed     int64
	mix      map[string]int
}

// benchResult is the outcome of one workload run
type benchResult struct {
	name    string
	elapsed time.Duration
	ops     int
	hits    int64
	lookups int64
	size    int
}

func (r benchResult) opsPerSecond() float64 {
	return float64(r.ops) / r.elapsed.Seconds()
}

func (r benchResult) hitRatio() float64 {
	if r.lookups == 0 {
		return 0
	}

	return float64(r.hits) / float64(r.lookups)
}

// benchCache is the operation set both contestants run
type benchCache interface {
	get(key uint64) bool
	set(key uint64)
	add(key uint64)
	getOrAdd(key uint64) bool
	remove(key uint64)
	len() int
}

type ledgerContestant struct {
	c *ledgercache.LedgerCache[uint64, uint64]
}

func (l ledgerContestant) get(key uint64) bool {
	_, ok := l.c.Get(key)

	return ok
}

func (l ledgerContestant) set(key uint64) { l.c.Set(key, key) }

func (l ledgerContestant) add(key uint64) { l.c.TryAdd(key, key) }

func (l ledgerContestant) getOrAdd(key uint64) bool {
	inserted, _ := l.c.GetOrAdd(key, key)

	return !inserted
}

func (l ledgerContestant) remove(key uint64) { l.c.Remove(key) }

func (l ledgerContestant) len() int { return l.c.Len() }

type lruContestant struct {
	c *lru.Cache
}

func (l lruContestant) get(key uint64) bool {
	_, ok := l.c.Get(key)

	return ok
}

func (l lruContestant) set(key uint64) { l.c.Add(key, key) }

func (l lruContestant) add(key uint64) { l.c.ContainsOrAdd(key, key) }

func (l lruContestant) getOrAdd(key uint64) bool {
	_, found, _ := l.c.PeekOrAdd(key, key)

	return found
}

func (l lruContestant) remove(key uint64) { l.c.Remove(key) }

func (l lruContestant) len() int { return l.c.Len() }

func newBenchCommand() *cobra.Command {
	opts := benchOptions{}

	c := &cobra.Command{
		Use:   "bench",
		Args:  cobra.NoArgs,
		Short: "Runs an in-process workload and compares it with an exact LRU cache",
		RunE: func(*cobra.Command, []string) error {
			return runBench(opts)
		},
	}

	c.Flags().IntVar(&opts.workers, "workers", 8, "number of concurrent workers") //nolint:gomnd
	c.Flags().IntVar(&opts.ops, "ops", 100_000, "operations per worker")           //nolint:gomnd
	c.Flags().Uint64Var(&opts.keys, "keys", 10_000, "size of the key space")       //nolint:gomnd
	c.Flags().Uint64Var(&opts.capacity, "capacity", 1_000, "cache capacity")       //nolint:gomnd
	c.Flags().DurationVar(&opts.ttl, "ttl", 0, "entry TTL of ledgercache, 0 disables expiration")
	c.Flags().Float64Var(&opts.zipf, "zipf", 1.1, "zipf exponent of the key distribution, must be > 1") //nolint:gomnd
	c.Flags().Int64Var(&opts.seed, "seed", 1, "random seed")
	c.Flags().StringToIntVar(&opts.mix, "mix",
		map[string]int{"get": 80, "set": 15, "remove": 5}, //nolint:gomnd
		"operation weights, known operations: get, set, add, get-or-add, remove")

	return c
}

func (o *benchOptions) validate() error {
	if o.workers < 1 || o.ops < 1 {
		return fmt.Errorf("workers and ops must be positive")
	}

	if o.keys < 2 { //nolint:gomnd
		return fmt.Errorf("key space must hold at least 2 keys")
	}

	if o.capacity < 1 {
		return fmt.Errorf("capacity must be positive")
	}

	if o.zipf <= 1 {
		return fmt.Errorf("zipf exponent must be > 1")
	}

	for name, weight := range o.mix {
		if _, ok := opNames[name]; !ok {
			return fmt.Errorf("unknown operation '%s'", name)
		}

		if weight < 0 {
			return fmt.Errorf("weight of '%s' must not be negative", name)
		}
	}

	return nil
}

func runBench(opts benchOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	workload, err := generateWorkload(opts)
	if err != nil {
		return err
	}

	logger := log.PrefixedLog("bench")

	logger.WithFields(logrus.Fields{
		"workers":  opts.workers,
		"ops":      opts.ops,
		"keys":     opts.keys,
		"capacity": opts.capacity,
	}).Info("running workload")

	ledger := ledgerContestant{c: ledgercache.NewCache[uint64, uint64](ledgercache.Options[uint64]{
		Capacity: opts.capacity,
		EntryTTL: opts.ttl,
	})}

	exact, err := lru.New(int(opts.capacity))
	if err != nil {
		return fmt.Errorf("can't create lru cache: %w", err)
	}

	for _, res := range []benchResult{
		runWorkload("ledgercache", ledger, workload),
		runWorkload("lru", lruContestant{c: exact}, workload),
	} {
		logger.WithField("cache", res.name).Infof(
			"%d ops in %s, %.0f ops/s, hit ratio %.2f%%, %d entries",
			res.ops, res.elapsed.Round(time.Millisecond), res.opsPerSecond(), res.hitRatio()*100, res.size) //nolint:gomnd
	}

	return nil
}

// generateWorkload creates one operation sequence per worker, both contestants replay the same sequences
func generateWorkload(opts benchOptions) ([][]benchOp, error) {
	names := make([]string, 0, len(opts.mix))
	for name := range opts.mix {
		names = append(names, name)
	}

	// map order is random, the chooser has to be deterministic for a seed
	sort.Strings(names)

	choices := make([]weightedrand.Choice, 0, len(names))
	for _, name := range names {
		choices = append(choices, weightedrand.NewChoice(opNames[name], uint(opts.mix[name])))
	}

	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		return nil, fmt.Errorf("invalid operation mix: %w", err)
	}

	workload := make([][]benchOp, opts.workers)

	for w := range workload {
		rnd := rand.New(rand.NewSource(opts.seed + int64(w))) //nolint:gosec
		zipf := rand.NewZipf(rnd, opts.zipf, 1, opts.keys-1)

		ops := make([]benchOp, opts.ops)
		for i := range ops {
			ops[i] = benchOp{
				kind: chooser.PickSource(rnd).(opKind),
				key:  zipf.Uint64(),
			}
		}

		workload[w] = ops
	}

	return workload, nil
}

func runWorkload(name string, c benchCache, workload [][]benchOp) benchResult {
	var (
		wg      sync.WaitGroup
		hits    atomic.Int64
		lookups atomic.Int64
		total   int
	)

	start := time.Now()

	for _, ops := range workload {
		total += len(ops)

		wg.Add(1)

		go func(ops []benchOp) {
			defer wg.Done()

			var h, l int64

			for _, op := range ops {
				switch op.kind {
				case opGet:
					l++

					if c.get(op.key) {
						h++
					}
				case opGetOrAdd:
					l++

					if c.getOrAdd(op.key) {
						h++
					}
				case opSet:
					c.set(op.key)
				case opAdd:
					c.add(op.key)
				case opRemove:
					c.remove(op.key)
				}
			}

			hits.Add(h)
			lookups.Add(l)
		}(ops)
	}

	wg.Wait()

	return benchResult{
		name:    name,
		elapsed: time.Since(start),
		ops:     total,
		hits:    hits.Load(),
		lookups: lookups.Load(),
		size:    c.len(),
	}
}
