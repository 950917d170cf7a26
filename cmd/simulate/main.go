package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-scheduling/internal/api"
	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Date         string
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
}

type DataPool struct {
	Patients []patient.Profile
	mu       sync.RWMutex
	bookings []uuid.UUID
}

func (dp *DataPool) AddBooking(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, id)
}

func (dp *DataPool) GetRandomBooking(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return uuid.Nil, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Search   OperationMetrics
	Booking  OperationMetrics
	Confirm  OperationMetrics
	Cancel   OperationMetrics
	ReadByID OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: date=%s duration=%s workers=%d booking=%.2f confirm=%.2f cancel=%.2f read=%.2f",
		cfg.Date, cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.ConfirmRatio, cfg.CancelRatio, cfg.ReadRatio)

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{Patients: fakePatients(cfg.PatientLimit)},
		client: &http.Client{Timeout: 10 * time.Second},
	}
	log.Printf("generated %d patients", len(sim.pool.Patients))

	sim.Run()
	sim.PrintReport()

	doubles, err := sim.CheckDoubleBookings(context.Background())
	if err != nil {
		log.Fatalf("double booking check: %v", err)
	}
	if len(doubles) > 0 {
		for _, k := range doubles {
			fmt.Printf("DOUBLE BOOKED: %s\n", k)
		}
		os.Exit(1)
	}
	fmt.Println("no slot was booked twice")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		Date:         getEnv("SIM_DATE", time.Now().AddDate(0, 0, 1).Format(slot.DateLayout)),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.15),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 200),
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.PatientLimit <= 0 {
		return fmt.Errorf("SIM_PATIENT_LIMIT must be > 0")
	}
	if _, err := time.Parse(slot.DateLayout, cfg.Date); err != nil {
		return fmt.Errorf("SIM_DATE must be YYYY-MM-DD: %w", err)
	}
	return nil
}

func fakePatients(n int) []patient.Profile {
	out := make([]patient.Profile, 0, n)
	for len(out) < n {
		p := patient.Profile{
			FirstName:   gofakeit.FirstName(),
			LastName:    gofakeit.LastName(),
			DateOfBirth: gofakeit.PastDate().AddDate(-gofakeit.Number(1, 80), 0, 0).Format(slot.DateLayout),
			IsNew:       gofakeit.Bool(),
			Email:       gofakeit.Email(),
		}
		if p.Validate() == nil {
			out = append(out, p)
		}
	}
	return out
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doSearchAndBook(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doTransition(ctx, rng, "confirm", nil, &s.metrics.Confirm)
			case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
				s.doTransition(ctx, rng, "cancel", api.CancelRequest{Reason: "simulated"}, &s.metrics.Cancel)
			default:
				s.doReadByID(ctx, rng)
			}
		}
	}
}

func (s *Simulator) post(ctx context.Context, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.client.Do(req)
}

// doSearchAndBook asks for an offer and tries to book one of its slots.
// Every worker picks from the head of the offer so they contend.
func (s *Simulator) doSearchAndBook(ctx context.Context, rng *rand.Rand) {
	profile := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.post(ctx, "/slots/search", scheduling.SlotQuery{Profile: profile, Date: s.config.Date})
	latency := time.Since(start)

	var offer scheduling.Offer
	ok := false
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			ok = json.NewDecoder(resp.Body).Decode(&offer) == nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	s.metrics.Search.Record(latency, ok, false)
	if !ok || len(offer.Slots) == 0 {
		return
	}

	pick := offer.Slots[rng.Intn(min(2, len(offer.Slots)))]

	start = time.Now()
	resp, err = s.post(ctx, "/bookings", scheduling.BookingRequest{
		Profile: profile,
		Date:    pick.Date,
		Time:    pick.Time,
		Doctor:  pick.Doctor,
	})
	latency = time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var created api.BookingResponse
			if json.NewDecoder(resp.Body).Decode(&created) == nil && created.ID != uuid.Nil {
				s.pool.AddBooking(created.ID)
			}
		case http.StatusConflict:
			conflict = true
		}
	}
	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, action string, body any, om *OperationMetrics) {
	id, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.post(ctx, fmt.Sprintf("/bookings/%s/%s", id, action), body)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}
	om.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/bookings/%s", s.config.APIBaseURL, id), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.ReadByID.Record(latency, success, false)
}

// CheckDoubleBookings lists the day's bookings and returns every slot key
// held by more than one live booking.
func (s *Simulator) CheckDoubleBookings(ctx context.Context) ([]string, error) {
	live := map[string]int{}
	const pageSize = 500

	for offset := 0; ; offset += pageSize {
		url := fmt.Sprintf("%s/bookings?date=%s&limit=%d&offset=%d", s.config.APIBaseURL, s.config.Date, pageSize, offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}

		var page []api.BookingResponse
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("list bookings: status %d", resp.StatusCode)
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		for _, b := range page {
			if b.Status == "cancelled" {
				continue
			}
			live[slot.Key{Date: b.Date, Time: b.Time, Doctor: b.Doctor}.String()]++
		}
		if len(page) < pageSize {
			break
		}
	}

	var doubles []string
	for k, n := range live {
		if n > 1 {
			doubles = append(doubles, k)
		}
	}
	sort.Strings(doubles)
	return doubles, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Date: %s\n", s.config.Date)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Search", &s.metrics.Search)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
