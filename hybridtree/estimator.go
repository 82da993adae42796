package hybridtree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cheggaaa/pb/v3"
)

// TrainConfig fixes the explicit knobs of one EM run. There are no hidden
// defaults: the estimator uses exactly what it is given.
type TrainConfig struct {
	MaxIter   int
	Tolerance float64
	Smoothing float64
	Threads   int
}

// Train fits the parameter tables by expectation-maximization and returns
// the total log-likelihood of every completed iteration.
//
// Each iteration is a barrier: the E-step maps the engine over all pairs in
// parallel against the current snapshot, each worker writing only its
// private accumulator; the reduction and the M-step run after every worker
// finished, and only then is the new snapshot published. ctx is honored
// between pairs and between iterations, never mid-pair.
func (model *Model) Train(ctx context.Context, dataContainer *DataContainer, config TrainConfig) ([]float64, error) {
	if config.Threads <= 0 {
		panic("Threads should be bigger than 0")
	}
	if config.MaxIter <= 0 {
		panic("MaxIter should be bigger than 0")
	}

	size := dataContainer.Size
	logLiks := make([]float64, 0, config.MaxIter)
	failRuns := make([]int, size)
	itersRun := 0

	for iter := 0; iter < config.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return logLiks, err
		}

		pairCounts := make([]*Counts, size)
		pairLLs := make([]float64, size)
		pairErrs := make([]error, size)

		ch := make(chan int, config.Threads)
		wg := sync.WaitGroup{}
		bar := pb.StartNew(size)
		stopped := false
		for i := 0; i < size; i++ {
			if ctx.Err() != nil {
				stopped = true
				break
			}
			ch <- 1
			wg.Add(1)
			go func(i int) {
				counts, ll, err := model.ExpectedCounts(dataContainer.Sents[i], dataContainer.Trees[i])
				pairCounts[i] = counts
				pairLLs[i] = ll
				pairErrs[i] = err
				bar.Add(1)
				<-ch
				wg.Done()
			}(i)
		}
		wg.Wait()
		bar.Finish()
		if stopped {
			return logLiks, ctx.Err()
		}

		global := NewCounts()
		totalLL := 0.0
		contributed := 0
		for i := 0; i < size; i++ {
			if pairErrs[i] != nil {
				var degenerate *DegenerateModelError
				if !errors.As(pairErrs[i], &degenerate) {
					fmt.Println("numerical error, pair skipped:", pairErrs[i])
				}
				failRuns[i]++
				continue
			}
			global.Merge(pairCounts[i])
			totalLL += pairLLs[i]
			contributed++
		}
		if contributed == 0 {
			return logLiks, fmt.Errorf("every training pair was degenerate at iteration %v", iter)
		}

		model.applyCounts(global, config.Smoothing)
		logLiks = append(logLiks, totalLL)
		itersRun++
		fmt.Println("iteration", iter, "log-likelihood", totalLL, "pairs", contributed, "/", size)

		if iter > 0 {
			delta := totalLL - logLiks[len(logLiks)-2]
			if delta < 0.0 {
				fmt.Println("warning: log-likelihood decreased by", -delta)
			}
			if delta >= 0.0 && delta < config.Tolerance {
				break
			}
		}
	}

	for i := 0; i < size; i++ {
		if failRuns[i] == itersRun && itersRun > 0 {
			fmt.Println("data-quality warning: pair", i, "never aligned:", dataContainer.Trees[i], "/", dataContainer.Sents[i])
		}
	}
	return logLiks, nil
}

// applyCounts is the M-step: renormalize every table row from the
// accumulated expected counts with additive smoothing over the row's
// support, then publish the new tables as the live snapshot. Rows whose
// conditioning context received no counts keep their previous distribution.
func (model *Model) applyCounts(counts *Counts, smoothing float64) {
	newTrans := make(map[string]map[string]float64, len(model.trans))
	newPattern := make(map[string][]float64, len(model.pattern))
	newEmit := make(map[string]map[string]float64, len(model.emit))

	for _, m := range model.grammar.Productions() {
		prodKey := m.key()

		patterns := model.patterns(m.Arity())
		crow := counts.Pattern[prodKey]
		total := smoothing * float64(len(patterns))
		for _, v := range crow {
			total += v
		}
		if total > 0.0 {
			row := make([]float64, len(patterns))
			for rIdx := range patterns {
				c := 0.0
				if crow != nil {
					c = crow[rIdx]
				}
				row[rIdx] = (c + smoothing) / total
			}
			newPattern[prodKey] = row
		} else if old, ok := model.pattern[prodKey]; ok {
			newPattern[prodKey] = old
		}

		for k := range m.Args {
			rowKey := transKey(m, k)
			support := model.grammar.ProductionsFor(m.Args[k])
			if len(support) == 0 {
				continue
			}
			crow := counts.Trans[rowKey]
			total := smoothing * float64(len(support))
			for _, v := range crow {
				total += v
			}
			if total > 0.0 {
				row := make(map[string]float64, len(support))
				for _, child := range support {
					row[child.key()] = (crow[child.key()] + smoothing) / total
				}
				newTrans[rowKey] = row
			} else if old, ok := model.trans[rowKey]; ok {
				newTrans[rowKey] = old
			}
		}
	}

	for rowKey, crow := range counts.Emit {
		total := smoothing * float64(len(model.vocab))
		for _, v := range crow {
			total += v
		}
		if total <= 0.0 {
			continue
		}
		var row map[string]float64
		if smoothing > 0.0 {
			row = make(map[string]float64, len(model.vocab))
			for word := range model.vocab {
				row[word] = (crow[word] + smoothing) / total
			}
		} else {
			row = make(map[string]float64, len(crow))
			for word, c := range crow {
				row[word] = c / total
			}
		}
		newEmit[rowKey] = row
	}
	// Emission contexts unseen this iteration keep their previous rows.
	for rowKey, row := range model.emit {
		if _, ok := newEmit[rowKey]; !ok {
			newEmit[rowKey] = row
		}
	}

	model.trans = newTrans
	model.pattern = newPattern
	model.emit = newEmit
}

// ShowParameters prints the parameter tables, largest rows first omitted;
// intended for debugging small models.
func (model *Model) ShowParameters() {
	fmt.Println("hybrid tree model,", model.variant, "emission context")
	for _, m := range model.grammar.Productions() {
		patterns := model.patterns(m.Arity())
		row := model.pattern[m.key()]
		for rIdx, r := range patterns {
			if row != nil {
				fmt.Println("pattern", m, "->", r, row[rIdx])
			}
		}
		for k := range m.Args {
			for _, child := range model.grammar.ProductionsFor(m.Args[k]) {
				fmt.Println("trans", m, "arg", k, "->", child, model.transProb(m, k, child))
			}
		}
	}
}
