package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/signals"
)

// runIndex produces the reduced card for INDEX assets. Valuation and quality
// do not apply; the overlay describes the index itself.
func (s *Service) runIndex(ctx context.Context, data *models.DashboardData, asset *models.Asset, bars []models.PriceBar) {
	data.BlockStatus[BlockValuation] = models.StatusNotApplicable
	data.BlockStatus[BlockQuality] = models.StatusNotApplicable

	state := models.StateD0
	if data.Drawdown != nil {
		state = data.Drawdown.State
	}
	risk := data.Risk

	amp, _ := s.regime.Amplification(state, risk.Volatility1Y, risk.PricePercentile)
	in := signals.RegimeInput{
		IndividualState:  state,
		MarketAvailable:  true,
		MarketState:      state,
		MarketVolatility: risk.Volatility1Y,
		MarketPosition:   risk.PricePercentile,
	}
	regime := s.regime.Classify(in, amp)
	data.Overlay = &models.OverlayResult{
		Individual: models.IndividualOverlay{
			State:       state,
			PathRisk:    risk.PathRisk,
			PositionPct: risk.PricePercentile,
		},
		Market: models.MarketOverlay{
			Available:     true,
			IndexID:       asset.AssetID,
			State:         state,
			PathRisk:      risk.PathRisk,
			PositionPct:   risk.PricePercentile,
			Volatility1Y:  risk.Volatility1Y,
			Amplification: amp,
		},
		Regime: regime,
		Flags:  s.regime.Flags(in, regime),
	}
	data.BlockStatus[BlockOverlay] = models.StatusOK

	role := s.indexRole(asset)
	card := &models.IndexCard{
		Role:        role,
		State:       state,
		StateCode:   state.String(),
		PathRisk:    risk.PathRisk,
		PositionPct: risk.PricePercentile,
		RiskLevel:   indexRiskLevel(state, risk.PathRisk, amp),
	}
	card.Conclusion = indexConclusion(data.DisplayName, role, card, amp, risk.Insufficient())
	data.IndexCard = card

	s.logger.Debug().
		Str("asset_id", asset.AssetID).
		Str("role", string(role)).
		Str("state", card.StateCode).
		Str("amplification", string(amp)).
		Msg("Index card composed")
}

// indexRole uses the stored role; an index configured as its market's
// benchmark is treated as MARKET when no role was recorded
func (s *Service) indexRole(asset *models.Asset) models.IndexRole {
	if asset.IndexRole != models.IndexRoleNone {
		return asset.IndexRole
	}
	if s.config.Overlay.MarketIndex[asset.Market] == asset.AssetID {
		return models.IndexRoleMarket
	}
	return models.IndexRoleNone
}

func indexRiskLevel(state models.DrawdownState, path models.PathRisk, amp models.Amplification) models.RiskLevel {
	switch {
	case state >= models.StateD4 || amp == models.AmplificationHigh:
		return models.RiskHigh
	case state <= models.StateD1 && path != models.PathRiskHigh:
		return models.RiskLow
	}
	return models.RiskMedium
}

func indexConclusion(name string, role models.IndexRole, card *models.IndexCard, amp models.Amplification, thin bool) string {
	var b strings.Builder

	subject := "Index"
	switch role {
	case models.IndexRoleMarket:
		subject = "Market benchmark"
	case models.IndexRoleGrowthProxy:
		subject = "Growth proxy"
	case models.IndexRoleValueProxy:
		subject = "Value proxy"
	case models.IndexRoleSectorProxy:
		subject = "Sector proxy"
	}
	fmt.Fprintf(&b, "%s %s is in %s (%s) with %s path risk, at the %.0fth percentile of its range.",
		subject, name, card.StateCode, card.State.Label(), strings.ToLower(string(card.PathRisk)), card.PositionPct*100)

	switch role {
	case models.IndexRoleMarket:
		switch amp {
		case models.AmplificationHigh:
			b.WriteString(" Market stress is high and amplifies single-name drawdowns.")
		case models.AmplificationMid:
			b.WriteString(" Market conditions moderately amplify single-name risk.")
		default:
			b.WriteString(" The market backdrop is not amplifying single-name risk.")
		}
	case models.IndexRoleGrowthProxy:
		if card.State >= models.StateD2 {
			b.WriteString(" Growth leadership is under pressure.")
		} else {
			b.WriteString(" Growth leadership is intact.")
		}
	case models.IndexRoleValueProxy:
		if card.State >= models.StateD2 {
			b.WriteString(" Defensive value exposure is not providing shelter.")
		} else {
			b.WriteString(" Value exposure is holding up.")
		}
	case models.IndexRoleSectorProxy:
		if card.State >= models.StateD3 {
			b.WriteString(" The sector as a whole is in a severe drawdown.")
		}
	}

	if thin {
		b.WriteString(" History is short, so percentiles are indicative only.")
	}
	return b.String()
}
