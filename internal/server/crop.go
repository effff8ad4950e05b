package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mkulima/internal/domain"
	"mkulima/internal/envdata"
	"mkulima/internal/profit"
	"mkulima/internal/storage/sqlite"
)

const (
	msgNoEnvData      = "No environmental data found for this county."
	msgNoPrediction   = "No previous prediction found. Run /crop/predict-yield first."
	msgNoCropSelected = "No crop selected. Send crop_name or calculate a profit first."
)

type predictYieldRequest struct {
	County   string  `json:"county" binding:"required"`
	FarmSize float64 `json:"farm_size" binding:"required,gt=0"`
}

type ownProfitRequest struct {
	CropName       string   `json:"crop_name" binding:"required"`
	SeedCost       *float64 `json:"seed_cost_per_acre"`
	FertilizerCost *float64 `json:"fertilizer_cost_per_acre"`
	LaborCost      *float64 `json:"labor_cost_per_acre"`
}

type defaultProfitRequest struct {
	CropName string `json:"crop_name"`
}

func (s *Server) predictYield(c *gin.Context) {
	var req predictYieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request: county and a positive farm_size are required.")
		return
	}
	ctx := c.Request.Context()

	row, err := s.deps.Fetcher.Fetch(ctx, req.County)
	if err != nil {
		if errors.Is(err, envdata.ErrCountyNotFound) {
			abortError(c, http.StatusNotFound, msgNoEnvData)
			return
		}
		log.Printf("predict envdata error county=%q: %v", req.County, err)
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveEnvDataError()
		}
		abortError(c, http.StatusBadGateway, "Environmental data service is unavailable. Try again later.")
		return
	}

	predictions, err := s.deps.Predictor.Predict(row)
	if err != nil {
		log.Printf("predict model error county=%q: %v", req.County, err)
		abortError(c, http.StatusInternalServerError, "Yield prediction failed.")
		return
	}

	county := row.County
	if county == "" {
		county = strings.TrimSpace(req.County)
	}
	rec := domain.PredictionRecord{
		ID:          uuid.NewString(),
		County:      county,
		FarmSize:    req.FarmSize,
		Predictions: predictions,
		InputData:   row.Values,
		CreatedAt:   s.deps.Now(),
	}
	session := sessionKey(c)
	if err := s.deps.Cache.Save(ctx, session, domain.Snapshot{Latest: &rec}); err != nil {
		log.Printf("predict cache save error session=%s: %v", session, err)
		abortError(c, http.StatusInternalServerError, "Could not store the prediction.")
		return
	}
	log.Printf("predict county=%q farm_size=%g crops=%d session=%s", rec.County, rec.FarmSize, len(predictions), session)

	if s.deps.DB != nil {
		if err := sqlite.InsertPrediction(s.deps.DB, session, rec); err != nil {
			log.Printf("predict history insert error id=%s: %v", rec.ID, err)
		}
	}
	if err := s.deps.Influx.RecordPrediction(ctx, rec); err != nil {
		log.Printf("predict influx error id=%s: %v", rec.ID, err)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObservePrediction(rec.County)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Predictions generated successfully.",
		"data":    rec,
	})
}

func (s *Server) calculateOwnProfit(c *gin.Context) {
	var req ownProfitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request: crop_name is required.")
		return
	}
	s.runProfit(c, req.CropName, domain.CostOverrides{
		Seed:       req.SeedCost,
		Fertilizer: req.FertilizerCost,
		Labor:      req.LaborCost,
	})
}

// calculateDefaultProfit uses catalog costs. Without crop_name it repeats the
// slot's last analysed crop.
func (s *Server) calculateDefaultProfit(c *gin.Context) {
	var req defaultProfitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortError(c, http.StatusBadRequest, "Invalid request body.")
		return
	}
	s.runProfit(c, req.CropName, domain.CostOverrides{})
}

func (s *Server) runProfit(c *gin.Context, cropName string, overrides domain.CostOverrides) {
	ctx := c.Request.Context()
	session := sessionKey(c)

	snap, ok, err := s.deps.Cache.Load(ctx, session)
	if err != nil {
		log.Printf("profit cache load error session=%s: %v", session, err)
		abortError(c, http.StatusInternalServerError, "Could not read the last prediction.")
		return
	}
	if !ok || snap.Latest == nil {
		abortError(c, http.StatusConflict, msgNoPrediction)
		return
	}

	crop := profit.NormalizeCrop(cropName)
	if crop == "" && snap.ProfitAnalysis != nil {
		crop = snap.ProfitAnalysis.Crop
	}
	if crop == "" {
		abortError(c, http.StatusBadRequest, msgNoCropSelected)
		return
	}
	pred, ok := snap.Latest.Predictions[crop]
	if !ok {
		abortError(c, http.StatusNotFound, fmt.Sprintf("No prediction found for %s.", crop))
		return
	}

	analysis, err := s.deps.Calculator.Analyze(crop, snap.Latest.FarmSize, pred.YieldPerAcre, overrides)
	switch {
	case errors.Is(err, profit.ErrNegativeCost):
		abortError(c, http.StatusBadRequest, "Cost values cannot be negative.")
		return
	case errors.Is(err, profit.ErrUnknownCrop):
		abortError(c, http.StatusNotFound, fmt.Sprintf("No market data for %s.", crop))
		return
	case err != nil:
		log.Printf("profit calculate error crop=%s: %v", crop, err)
		abortError(c, http.StatusInternalServerError, "Profit calculation failed.")
		return
	}

	snap.ProfitAnalysis = &analysis
	if err := s.deps.Cache.Save(ctx, session, snap); err != nil {
		log.Printf("profit cache save error session=%s: %v", session, err)
		abortError(c, http.StatusInternalServerError, "Could not store the profit analysis.")
		return
	}
	log.Printf("profit crop=%s county=%q profit=%.2f margin=%.2f defaults=%t session=%s", crop, snap.Latest.County, analysis.Profit.TotalProfit, analysis.ProfitMargin, analysis.UsedDefaults, session)

	now := s.deps.Now()
	if s.deps.DB != nil {
		if err := sqlite.InsertProfitAnalysis(s.deps.DB, snap.Latest.ID, analysis, now); err != nil {
			log.Printf("profit history insert error prediction=%s: %v", snap.Latest.ID, err)
		}
	}
	if err := s.deps.Influx.RecordProfit(ctx, snap.Latest.County, analysis, now); err != nil {
		log.Printf("profit influx error prediction=%s: %v", snap.Latest.ID, err)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveProfit(crop, analysis.UsedDefaults)
	}

	c.JSON(http.StatusOK, gin.H{
		"county":        snap.Latest.County,
		"farm_size":     snap.Latest.FarmSize,
		"crop":          crop,
		"profit":        analysis.Profit,
		"profit_margin": analysis.ProfitMargin,
		"prediction":    pred.YieldPerAcre,
		"market_price":  analysis.MarketPrice,
		"cache":         snap,
	})
}

func (s *Server) listCrops(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"crops": s.deps.Predictor.Crops()})
}
