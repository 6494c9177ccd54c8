// Package catalog expands fixed table catalogs into source/target asset pairs.
package catalog

import (
	"github.com/dukex/assetflow/pkg/models"
)

const (
	SourceAssetType = "el_source_asset"
	TargetAssetType = "el_target_asset"

	LanaSystem = "lana"
)

// Resource keys required by sync target assets.
const (
	ResourceLanaCorePG = "lana_core_pg"
	ResourceDW         = "dw_bq"
)

// LanaTables is the lana core catalog. The order is stable across releases.
var LanaTables = []string{
	"core_chart_events_rollup",
	"core_collateral_events_rollup",
	"core_credit_facility_events_rollup",
	"core_credit_facility_proposal_events_rollup",
	"core_customer_events_rollup",
	"core_deposit_account_events_rollup",
	"core_deposit_events_rollup",
	"core_disbursal_events_rollup",
	"core_interest_accrual_cycle_events_rollup",
	"core_liquidation_events_rollup",
	"core_obligation_events_rollup",
	"core_payment_allocation_events_rollup",
	"core_payment_events_rollup",
	"core_pending_credit_facility_events_rollup",
	"core_withdrawal_events_rollup",
	"core_public_ids",
	"core_chart_events",
	"core_chart_node_events",
	"cala_account_set_member_account_sets",
	"cala_account_set_member_accounts",
	"cala_account_sets",
	"cala_accounts",
	"cala_balance_history",
	"inbox_events",
}

// Pair is the source placeholder and the sync target of one table.
type Pair struct {
	Source *models.Asset
	Target *models.Asset
}

func SourceAssetName(system, table string) string {
	return SourceAssetType + "__" + system + "__" + table
}

func SourceKey(system, table string) models.AssetKey {
	return models.NewAssetKey(SourceAssetName(system, table))
}

func TargetKey(system, table string) models.AssetKey {
	return models.NewAssetKey(system, table)
}

// ExpandCatalog returns one Pair per table, in input order. Identities depend
// only on (system, table), so expanding the same catalog twice yields equal output.
func ExpandCatalog(system string, tables []string) []Pair {
	pairs := make([]Pair, 0, len(tables))

	for _, table := range tables {
		source := &models.Asset{
			Key: SourceKey(system, table),
			Tags: map[string]string{
				models.TagAssetType: SourceAssetType,
				models.TagSystem:    system,
			},
			Description: "Source table " + table + " in " + system,
		}

		target := &models.Asset{
			Key:  TargetKey(system, table),
			Deps: []models.AssetKey{SourceKey(system, table)},
			Tags: map[string]string{
				models.TagAssetType: TargetAssetType,
				models.TagSystem:    system,
			},
			Description:       "Warehouse copy of " + system + "." + table,
			Producer:          models.SyncTarget{System: system, Table: table},
			RequiredResources: []string{ResourceLanaCorePG, ResourceDW},
			Policy:            models.OnMissingOrCron(models.DailyAtMidnight),
		}

		pairs = append(pairs, Pair{Source: source, Target: target})
	}

	return pairs
}

// Assets flattens pairs into a single slice, sources first within each pair.
func Assets(pairs []Pair) []*models.Asset {
	out := make([]*models.Asset, 0, 2*len(pairs))
	for _, pair := range pairs {
		out = append(out, pair.Source, pair.Target)
	}

	return out
}
