package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/semparse/hybridtree/hybridtree"
)

func main() {
	var (
		flagMode      = flag.String("mode", "train", "train or decode")
		flagGrammar   = flag.String("grammar", "", "grammar file path")
		flagTrain     = flag.String("train", "", "training pairs file path (sentence TAB mr tree)")
		flagTest      = flag.String("test", "", "sentences file path for decoding")
		flagModel     = flag.String("model", "model.json", "model file path")
		flagVariant   = flag.String("variant", "unigram", "emission context: unigram or bigram")
		flagGapWords  = flag.Int("gapwords", 2, "maximum number of words per pattern gap")
		flagIter      = flag.Int("iter", 30, "maximum number of EM iterations")
		flagTolerance = flag.Float64("tolerance", 1e-4, "log-likelihood convergence tolerance")
		flagSmoothing = flag.Float64("smoothing", 0.1, "additive smoothing constant")
		flagInit      = flag.String("init", "random", "initialization policy: uniform or random")
		flagSeed      = flag.Uint64("seed", 1, "random seed for initialization")
		flagThreads   = flag.Int("threads", 8, "number of threads")
		flagRoot      = flag.String("root", "", "root semantic category for decoding (empty allows any)")
		flagFormat    = flag.String("saveFormat", "notindent", "model save format (indent or notindent)")
	)
	flag.Parse()

	runtime.GOMAXPROCS(*flagThreads)
	switch *flagMode {
	case "train":
		train(*flagGrammar, *flagTrain, *flagModel, *flagVariant, *flagGapWords, *flagIter, *flagTolerance, *flagSmoothing, *flagInit, *flagSeed, *flagThreads, *flagFormat)
	case "decode":
		decode(*flagModel, *flagTest, *flagRoot, *flagThreads)
	default:
		fmt.Println("unknown mode", *flagMode)
		os.Exit(1)
	}
}

func train(grammarFile string, trainFile string, modelFile string, variant string, gapWords int, iter int, tolerance float64, smoothing float64, initPolicy string, seed uint64, threads int, saveFormat string) {
	fmt.Println("Loading grammar")
	grammar, err := hybridtree.LoadGrammar(grammarFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("Loading data")
	dataContainer, err := hybridtree.NewDataContainer(trainFile, grammar)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("Building model")
	model, ok := hybridtree.GenerateModel(variant, grammar, gapWords)
	if !ok {
		fmt.Println("unknown variant", variant)
		os.Exit(1)
	}
	model.Initialize(dataContainer, initPolicy, seed)
	fmt.Println("Training model")
	config := hybridtree.TrainConfig{MaxIter: iter, Tolerance: tolerance, Smoothing: smoothing, Threads: threads}
	logLiks, err := model.Train(context.Background(), dataContainer, config)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("Converged after", len(logLiks), "iterations")
	if err := hybridtree.SaveModel(model, modelFile, saveFormat); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("Model saved to", modelFile)
}

func decode(modelFile string, testFile string, rootCategory string, threads int) {
	fmt.Println("Loading model")
	model, err := hybridtree.LoadModel(modelFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	sents, err := hybridtree.LoadSentences(testFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("Decoding")
	trees, errs := model.DecodeSentences(sents, rootCategory, threads)
	for i := range sents {
		if errs[i] != nil {
			fmt.Println(strings.Join(sents[i], " "), "\t", errs[i])
			continue
		}
		fmt.Println(strings.Join(sents[i], " "), "\t", trees[i])
	}
}
