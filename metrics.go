// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package hammersbald

import "github.com/VictoriaMetrics/metrics"

var (
	putsTotal       = metrics.NewCounter(`hammersbald_puts_total`)
	getsTotal       = metrics.NewCounter(`hammersbald_gets_total`)
	batchesTotal    = metrics.NewCounter(`hammersbald_batches_total`)
	recoveriesTotal = metrics.NewCounter(`hammersbald_recoveries_total`)
	splitsTotal     = metrics.NewCounter(`hammersbald_index_splits_total`)
)
