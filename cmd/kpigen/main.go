package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

var (
	devices   = flag.Int("devices", 5, "Number of production lines to simulate")
	windows   = flag.Int("windows", 1, "Aggregation windows per device")
	lowProb   = flag.Float64("low", 0.3, "Probability of a low-quality window (0.0-1.0)")
	malformed = flag.Float64("malformed", 0.0, "Probability of emitting a malformed line (0.0-1.0)")
	output    = flag.String("out", "-", "Output file, - for stdout")
	invokeURL = flag.String("invoke", "", "POST the generated blob to a custom handler, e.g. http://localhost:8080/ProductionRateAdjuster")
	blobName  = flag.String("name", "", "Blob name sent with -invoke (default kpi-<unix>.json)")
)

// qualityLine mirrors the stream analytics output consumed by the adjuster.
type qualityLine struct {
	DeviceName     string  `json:"DeviceName"`
	WindowEnd      string  `json:"WindowEnd"`
	TotalGood      float64 `json:"TotalGood"`
	TotalProduced  float64 `json:"TotalProduced"`
	GoodPercentage float64 `json:"GoodPercentage"`
}

type QualityGenerator struct {
	lowProbability float64
	rng            *rand.Rand
}

func NewQualityGenerator(lowProb float64, seed int64) *QualityGenerator {
	return &QualityGenerator{
		lowProbability: lowProb,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// Generate produces one window of counters for a device.
func (g *QualityGenerator) Generate(device string, windowEnd time.Time) qualityLine {
	produced := float64(800 + g.rng.Intn(400))

	// Healthy lines sit between 92% and 99.5% good
	ratio := 0.92 + g.rng.Float64()*0.075
	if g.rng.Float64() < g.lowProbability {
		ratio = 0.60 + g.rng.Float64()*0.29 // 60-89%
	}

	good := math.Floor(produced * ratio)
	return qualityLine{
		DeviceName:     device,
		WindowEnd:      windowEnd.UTC().Format(time.RFC3339),
		TotalGood:      good,
		TotalProduced:  produced,
		GoodPercentage: math.Round(good/produced*10000) / 100,
	}
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	gen := NewQualityGenerator(*lowProb, time.Now().UnixNano())

	var buf bytes.Buffer
	lowCount := 0
	windowEnd := time.Now().Truncate(5 * time.Minute)

	for w := *windows - 1; w >= 0; w-- {
		end := windowEnd.Add(-time.Duration(w) * 5 * time.Minute)
		for d := 1; d <= *devices; d++ {
			if gen.rng.Float64() < *malformed {
				buf.WriteString("{\"DeviceName\": \"Line\n")
				continue
			}
			line := gen.Generate(fmt.Sprintf("Line %d", d), end)
			if line.GoodPercentage < 90 {
				lowCount++
			}
			jsonData, err := json.Marshal(line)
			if err != nil {
				logger.Fatal("Failed to marshal quality line", zap.Error(err))
			}
			buf.Write(jsonData)
			buf.WriteByte('\n')
		}
	}

	logger.Info("Generated quality blob",
		zap.Int("devices", *devices),
		zap.Int("windows", *windows),
		zap.Int("low_quality", lowCount),
		zap.Int("bytes", buf.Len()))

	if *invokeURL != "" {
		name := *blobName
		if name == "" {
			name = fmt.Sprintf("kpi-%d.json", time.Now().Unix())
		}
		if err := invoke(*invokeURL, name, buf.String()); err != nil {
			logger.Fatal("Invocation failed", zap.Error(err))
		}
		return
	}

	if err := writeOutput(*output, buf.Bytes()); err != nil {
		logger.Fatal("Failed to write output", zap.Error(err))
	}
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		w := bufio.NewWriter(os.Stdout)
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.Flush()
	}
	return os.WriteFile(path, data, 0o644)
}

// invoke posts the blob the same way the Functions host calls a custom handler.
func invoke(url, name, content string) error {
	body, err := json.Marshal(map[string]interface{}{
		"Data":     map[string]string{"blobContent": content},
		"Metadata": map[string]string{"name": name},
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Println(string(respBody))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("handler returned %s", resp.Status)
	}
	return nil
}
