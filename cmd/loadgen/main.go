package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"go.uber.org/zap"

	"matchbook/engine"
	"matchbook/refdata"
)

func main() {
	totalOrders := flag.Int("orders", 500000, "number of orders to submit")
	priceLevels := flag.Int("price-levels", 200, "unique cent levels around the mid")
	basePrice := flag.Float64("base-price", 100.00, "mid price used for randomization")
	instrument := flag.String("instrument", "SIM", "instrument to trade")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for deterministic random streams")
	marketRatio := flag.Int("market-ratio", 5, "1 in N sells is a market order instead of a limit")
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write heap profile to file")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	cache := refdata.New(zap.NewNop())
	cache.Put(refdata.Instrument{Name: *instrument, ReferencePrice: *basePrice})
	eng := engine.New(cache, zap.NewNop())

	inst, err := cache.Lookup(*instrument)
	if err != nil {
		panic(err)
	}
	book := eng.Book(inst)

	// Drain the fill stream so slow-consumer drops never skew matching.
	go func() {
		for range book.Trades() {
		}
	}()

	start := time.Now()
	for i := 0; i < *totalOrders; i++ {
		order, err := engine.NewOrder(nextRandomOrder(rng, i, inst, *basePrice, *priceLevels, *marketRatio))
		if err != nil {
			fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
			continue
		}
		result, err := eng.SubmitOrder(order)
		if err != nil {
			fmt.Fprintf(os.Stderr, "submit failed: %v\n", err)
			continue
		}
		if res := <-result; res.Err != nil {
			fmt.Fprintf(os.Stderr, "rejected: %v\n", res.Err)
		}
	}
	elapsed := time.Since(start)

	var fills int
	for _, o := range book.OrderHistory() {
		fills += o.TradeCount()
	}
	matches := fills / 2

	eng.Close()

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err == nil {
			defer f.Close()
			_ = pprof.WriteHeapProfile(f)
		}
	}

	ordersPerSec := float64(*totalOrders) / elapsed.Seconds()
	tradesPerSec := float64(matches) / elapsed.Seconds()

	fmt.Printf("submitted %d orders in %s (%.0f orders/s)\n", *totalOrders, elapsed.Truncate(time.Millisecond), ordersPerSec)
	fmt.Printf("matched %d trades (%.0f trades/s)\n", matches, tradesPerSec)
	fmt.Printf("config: levels=%d market-ratio=1/%d seed=%s\n", *priceLevels, *marketRatio, strconv.FormatInt(*seed, 10))
}

func nextRandomOrder(rng *rand.Rand, id int, inst refdata.Instrument, mid float64, width, marketRatio int) engine.OrderParams {
	side := engine.Buy
	if rng.Intn(2) == 1 {
		side = engine.Sell
	}

	offset := float64(rng.Intn(width)) / 100
	var price float64
	if side == engine.Buy {
		price = mid + offset
	} else {
		price = math.Max(mid-offset, 0.01)
	}
	price = math.Round(price*100) / 100

	params := engine.OrderParams{
		ClientOrderID: "lg-" + strconv.Itoa(id),
		Instrument:    inst,
		Side:          side,
		Type:          engine.Limit,
		LimitPrice:    price,
		Quantity:      float64(rng.Intn(5) + 1),
	}
	if side == engine.Sell && marketRatio > 0 && rng.Intn(marketRatio) == 0 {
		params.Type = engine.Market
		params.LimitPrice = 0
	}
	return params
}
