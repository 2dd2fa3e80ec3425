package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/leon-biju/trading-simulator/internal/trigger"
	"github.com/leon-biju/trading-simulator/internal/types"
)

var (
	serverAddress = flag.String("addr", "http://localhost:8080", "trading API base URL")
	apiKey        = flag.String("api-key", "test-api-key", "API key the orders are placed under")
	apiSecret     = flag.String("api-secret", "test-api-secret", "API secret")
	internalKey   = flag.String("internal-key", "internal-key", "shared key for internal routes")
	numWorkers    = flag.Int("workers", 5, "concurrent order workers")
	minOrders     = flag.Int("min-orders", 15, "lower bound of orders to place")
	maxOrders     = flag.Int("max-orders", 150, "upper bound of orders to place")
	symbolList    = flag.String("symbols", "AAPL:190.00,VOD:0.72,GBPUSD:1.27", "symbol:reference price pairs")
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

type instrument struct {
	symbol string
	price  decimal.Decimal
}

func parseInstruments(s string) ([]instrument, error) {
	var out []instrument
	for _, pair := range strings.Split(s, ",") {
		symbol, price, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("bad symbol pair %q", pair)
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("bad price for %s: %w", symbol, err)
		}
		out = append(out, instrument{symbol: strings.ToUpper(symbol), price: p})
	}
	return out, nil
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// record stores a call's duration and whether it failed
func (rs *routeStats) record(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// envelope mirrors the API's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// simulationClient handles HTTP communication with the trading API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
	order     []string
}

// newSimulationClient creates a client and authenticates it
func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: strings.TrimRight(*serverAddress, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":    {name: "Authentication"},
			"prices":  {name: "Push Prices"},
			"create":  {name: "Create Order"},
			"get":     {name: "Get Order"},
			"cancel":  {name: "Cancel Order"},
			"sweep":   {name: "Sweep Scope"},
			"summary": {name: "Order Summary"},
		},
		order: []string{"auth", "prices", "create", "get", "cancel", "sweep", "summary"},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// do sends a request, times it under route and decodes the envelope's data
// into out when out is non-nil
func (sc *simulationClient) do(route, method, path string, body any, headers map[string]string, out any) (int, error) {
	start := time.Now()
	status, err := sc.send(method, path, body, headers, out)
	sc.stats[route].record(time.Since(start), err != nil)
	return status, err
}

func (sc *simulationClient) send(method, path string, body any, headers map[string]string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Int("status", resp.StatusCode).Str("response", string(respBody)).Msg("Response")

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if !env.Success {
		if env.Error != nil {
			return resp.StatusCode, fmt.Errorf("%s %s failed with status %d: %s: %s", method, path, resp.StatusCode, env.Error.Code, env.Error.Message)
		}
		return resp.StatusCode, fmt.Errorf("%s %s failed with status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (sc *simulationClient) bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + sc.authToken}
}

func internalHeaders() map[string]string {
	return map[string]string{"X-Internal-Key": *internalKey}
}

// authenticate exchanges the API credentials for a JWT
func (sc *simulationClient) authenticate() (string, error) {
	credentials := map[string]string{
		"api_key":    *apiKey,
		"api_secret": *apiSecret,
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if _, err := sc.do("auth", http.MethodPost, "/api/v1/auth/token", credentials, nil, &result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", fmt.Errorf("no token in response")
	}
	return result.Token, nil
}

// pushPrices sends one tick per instrument through the internal price route
func (sc *simulationClient) pushPrices(ticks []trigger.Tick) (*trigger.PipelineResult, error) {
	var result trigger.PipelineResult
	if _, err := sc.do("prices", http.MethodPost, "/api/v1/internal/prices", map[string]any{"ticks": ticks}, internalHeaders(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// createOrder places an order and returns it as stored
func (sc *simulationClient) createOrder(req map[string]any) (*types.Order, error) {
	headers := sc.bearer()
	headers["Idempotency-Key"] = uuid.NewString()

	var order types.Order
	if _, err := sc.do("create", http.MethodPost, "/api/v1/orders", req, headers, &order); err != nil {
		return nil, err
	}
	if order.OrderID == "" {
		return nil, fmt.Errorf("no order ID in response")
	}
	return &order, nil
}

// getOrder retrieves the current status of an order
func (sc *simulationClient) getOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if _, err := sc.do("get", http.MethodGet, "/api/v1/orders/"+orderID, nil, sc.bearer(), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// cancelOrder cancels a pending order. A 409 means it already left PENDING.
func (sc *simulationClient) cancelOrder(orderID string) (bool, error) {
	status, err := sc.do("cancel", http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", nil, sc.bearer(), nil)
	if status == http.StatusConflict {
		return false, nil
	}
	return err == nil, err
}

// sweep asks the server to process every pending order of this owner
func (sc *simulationClient) sweep() (*trigger.SweepResult, error) {
	var result trigger.SweepResult
	if _, err := sc.do("sweep", http.MethodPost, "/api/v1/internal/sweeps/scope", map[string]any{"owner": *apiKey}, internalHeaders(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (sc *simulationClient) summary() (*types.OrderSummary, error) {
	var result types.OrderSummary
	if _, err := sc.do("summary", http.MethodGet, "/api/v1/orders/summary", nil, sc.bearer(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, key := range sc.order {
		stats := sc.stats[key]
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// jitter moves a reference price by up to 2% either way, at 2dp
func jitter(p decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromFloat(0.98 + rand.Float64()*0.04)
	out := p.Mul(factor).Round(2)
	if !out.IsPositive() {
		return decimal.RequireFromString("0.01")
	}
	return out
}

// randomOrder builds a random BUY or SELL, MARKET or LIMIT request
func randomOrder(instruments []instrument) map[string]any {
	inst := instruments[rand.Intn(len(instruments))]
	side := types.OrderSideBuy
	if rand.Intn(3) == 0 {
		side = types.OrderSideSell
	}

	req := map[string]any{
		"asset":      inst.symbol,
		"side":       side,
		"order_type": types.OrderTypeMarket,
		"quantity":   decimal.NewFromInt(int64(rand.Intn(10) + 1)).String(),
	}
	if rand.Intn(2) == 0 {
		req["order_type"] = types.OrderTypeLimit
		req["limit_price"] = jitter(inst.price).String()
	}
	return req
}

// createOrdersHTTP submits random orders as a worker goroutine, sending each
// placed order to ordersChan
func createOrdersHTTP(workerID, numOrders int, simClient *simulationClient, instruments []instrument, ordersChan chan<- *types.Order) {
	for i := 0; i < numOrders; i++ {
		req := randomOrder(instruments)

		order, err := simClient.createOrder(req)
		if err != nil {
			log.Error().Err(err).
				Int("worker_id", workerID).
				Interface("asset", req["asset"]).
				Msg("Failed to create order")
			continue
		}

		ordersChan <- order
		log.Info().
			Int("worker_id", workerID).
			Str("order_id", order.OrderID).
			Str("asset", order.AssetSymbol).
			Str("side", string(order.Side)).
			Str("type", string(order.OrderType)).
			Str("quantity", order.Quantity.String()).
			Str("status", string(order.Status)).
			Msg("Order created")

		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// main drives a running trading API with concurrent random orders, moving
// prices between rounds so limit orders cross
func main() {
	flag.Parse()

	instruments, err := parseInstruments(*symbolList)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid symbols")
	}
	if *maxOrders <= *minOrders || *numWorkers <= 0 {
		log.Fatal().Msg("max-orders must exceed min-orders and workers must be positive")
	}

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	ticks := make([]trigger.Tick, 0, len(instruments))
	for _, inst := range instruments {
		ticks = append(ticks, trigger.Tick{Symbol: inst.symbol, Price: inst.price})
	}
	if _, err := simClient.pushPrices(ticks); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed prices")
	}

	targetOrders := rand.Intn(*maxOrders-*minOrders) + *minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")
	startTime := time.Now()

	ordersChan := make(chan *types.Order, targetOrders)
	var wg sync.WaitGroup
	for i := 0; i < *numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			createOrdersHTTP(workerID, targetOrders / *numWorkers, simClient, instruments, ordersChan)
		}(i)
	}
	wg.Wait()
	close(ordersChan)

	var placed []*types.Order
	statuses := make(map[types.OrderStatus]int)
	assets := make(map[string]int)
	for order := range ordersChan {
		placed = append(placed, order)
		statuses[order.Status]++
		assets[order.AssetSymbol]++
	}
	log.Info().Int("orders_created", len(placed)).Msg("All orders created")

	// Move every price and let the pipeline cross limits
	for i := range ticks {
		ticks[i].Price = jitter(instruments[i].price)
	}
	tickResult, err := simClient.pushPrices(ticks)
	if err != nil {
		log.Error().Err(err).Msg("Failed to push moved prices")
	} else {
		log.Info().
			Int("limit_executed", tickResult.Limit.Executed).
			Int("market_executed", tickResult.Market.Executed).
			Msg("Prices moved")
	}

	sweepResult, err := simClient.sweep()
	if err != nil {
		log.Error().Err(err).Msg("Failed to sweep")
	} else {
		log.Info().Interface("result", sweepResult).Msg("Owner sweep done")
	}

	// Cancel about a third of whatever is still pending
	var cancelled, cancelMissed int
	for _, order := range placed {
		if order.Status != types.OrderStatusPending || rand.Intn(3) != 0 {
			continue
		}
		ok, err := simClient.cancelOrder(order.OrderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to cancel order")
			continue
		}
		if ok {
			cancelled++
		} else {
			cancelMissed++
		}
	}

	final := make(map[types.OrderStatus]int)
	for _, order := range placed {
		current, err := simClient.getOrder(order.OrderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to get order")
			continue
		}
		final[current.Status]++
	}

	summary, err := simClient.summary()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get order summary")
	}

	duration := time.Since(startTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Order Statistics
----------------
Target Orders:    %d
Placed:           %d
Cancelled:        %d
Already Settled:  %d
Duration:         %v

Status At Placement
-------------------
`, targetOrders, len(placed), cancelled, cancelMissed, duration.Round(time.Millisecond))
	printDistribution(statusCounts(statuses))

	fmt.Println("\nFinal Status")
	fmt.Println("------------")
	printDistribution(statusCounts(final))

	fmt.Println("\nAsset Distribution")
	fmt.Println("------------------")
	printDistribution(assets)

	if summary != nil {
		fmt.Println("\nServer Order Summary")
		fmt.Println("--------------------")
		printDistribution(statusCounts(summary.Counts))
	}
	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Int("placed", len(placed)).
		Int("filled", final[types.OrderStatusFilled]).
		Int("pending", final[types.OrderStatusPending]).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

func statusCounts(m map[types.OrderStatus]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// printDistribution prints counts as a simple ASCII bar chart
func printDistribution(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	maxCount := 0
	for k, v := range counts {
		keys = append(keys, k)
		if v > maxCount {
			maxCount = v
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		barLength := 0
		if maxCount > 0 {
			barLength = int(float64(counts[k]) / float64(maxCount) * 20)
		}
		fmt.Printf("%-10s: %s (%d)\n", k, strings.Repeat("#", barLength), counts[k])
	}
}
