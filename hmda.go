package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/invertedv/chutils"
	"github.com/sirupsen/logrus"

	"github.com/invertedv/hmda/bronze"
	"github.com/invertedv/hmda/clean"
	"github.com/invertedv/hmda/config"
	"github.com/invertedv/hmda/eras"
	"github.com/invertedv/hmda/match"
	"github.com/invertedv/hmda/silver"
	"github.com/invertedv/hmda/source"
)

func main() {
	var err error
	host := flag.String("host", "", "string")
	user := flag.String("user", "", "string")
	password := flag.String("password", "", "string")
	rawDir := flag.String("rawdir", "", "string")
	stage := flag.String("stage", "all", "string")
	datasets := flag.String("datasets", "loans,ts,panel", "string")
	minYear := flag.Int("minyear", 0, "int")
	maxYear := flag.Int("maxyear", 0, "int")
	replace := flag.String("replace", "N", "string")
	nConcur := flag.Int("concur", 0, "int")
	maxMemory := flag.Int64("memory", 0, "int64")
	maxGroupby := flag.Int64("groupby", 0, "int64")
	bronzeDb := flag.String("bronzedb", "", "string")
	silverDb := flag.String("silverdb", "", "string")
	matchDb := flag.String("matchdb", "", "string")
	bounds := flag.String("bounds", "", "string")
	keepRaw := flag.String("keepraw", "N", "string")

	flag.Parse()

	cfg := config.New()
	cfg.Env()
	overlay(cfg, *host, *user, *password, *rawDir, *bronzeDb, *silverDb, *matchDb, *bounds)
	if *minYear > 0 {
		cfg.MinYear = *minYear
	}
	if *maxYear > 0 {
		cfg.MaxYear = *maxYear
	}
	if *nConcur > 0 {
		cfg.NConcur = *nConcur
	}
	if *maxMemory > 0 {
		cfg.MaxMemory = *maxMemory
	}
	if *maxGroupby > 0 {
		cfg.MaxGroupBy = *maxGroupby
	}
	cfg.KeepRaw = *keepRaw == "Y" || *keepRaw == "y"
	repl := *replace == "Y" || *replace == "y"

	if err = cfg.Validate(); err != nil {
		log.Fatalln(err)
	}

	con, err := chutils.NewConnect(cfg.Host, cfg.User, cfg.Password, clickhouse.Settings{
		"max_memory_usage":                   cfg.MaxMemory,
		"max_bytes_before_external_group_by": cfg.MaxGroupBy,
	})
	if err != nil {
		log.Fatalln(err)
	}
	defer func() {
		if e := con.Close(); e != nil {
			log.Fatalln(e)
		}
	}()

	for _, db := range []string{cfg.BronzeDb, cfg.SilverDb, cfg.MatchDb} {
		if _, e := con.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db)); e != nil {
			log.Fatalln(e)
		}
	}

	ds, err := parseDatasets(*datasets)
	if err != nil {
		log.Fatalln(err)
	}

	totTime := 0.0
	run := func(name string, f func() error) {
		s := time.Now()
		if e := f(); e != nil {
			log.Fatalln(e)
		}
		elapsed := time.Since(s)
		totTime += elapsed.Seconds()
		fmt.Printf("Done with %s, time: %v\n", name, elapsed)
	}

	stages := strings.Split(strings.ToLower(*stage), ",")
	if len(stages) == 1 && stages[0] == "all" {
		stages = []string{"bronze", "silver", "clean", "match"}
	}
	for _, st := range stages {
		switch strings.TrimSpace(st) {
		case "bronze":
			for _, d := range ds {
				d := d
				run("bronze "+d.String(), func() error {
					return bronze.Build(d, cfg.MinYear, cfg.MaxYear, repl, cfg, con)
				})
			}
		case "silver":
			for _, d := range ds {
				d := d
				run("silver "+d.String(), func() error {
					return silver.Build(d, cfg.MinYear, cfg.MaxYear, repl, cfg, con)
				})
			}
		case "clean":
			run("clean", func() error { return runClean(cfg, con) })
		case "match":
			run("match", func() error { return runMatch(cfg, con) })
		default:
			log.Fatalln(fmt.Errorf("unknown stage: %s", st))
		}
	}
	fmt.Printf("total time: %0.2f hours\n", totTime/3600.0)
}

func overlay(cfg *config.Config, host, user, password, rawDir, bronzeDb, silverDb, matchDb, bounds string) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Host, host)
	set(&cfg.User, user)
	set(&cfg.Password, password)
	set(&cfg.RawDir, rawDir)
	set(&cfg.BronzeDb, bronzeDb)
	set(&cfg.SilverDb, silverDb)
	set(&cfg.MatchDb, matchDb)
	set(&cfg.BoundsFile, bounds)
}

func parseDatasets(s string) ([]source.Dataset, error) {
	out := make([]source.Dataset, 0, 3)
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "loans", "lar":
			out = append(out, source.Loans)
		case "ts":
			out = append(out, source.TS)
		case "panel":
			out = append(out, source.Panel)
		case "":
		default:
			return nil, fmt.Errorf("unknown dataset: %s", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no datasets selected")
	}
	return out, nil
}

// runClean rebuilds the {table}_clean companion for every silver loan table
// in the configured year range.
func runClean(cfg *config.Config, con *chutils.Connect) error {
	bnds := clean.DefaultBounds()
	if cfg.BoundsFile != "" {
		var err error
		if bnds, err = clean.LoadBounds(cfg.BoundsFile); err != nil {
			return err
		}
	}

	for year := cfg.MinYear; year <= cfg.MaxYear; year++ {
		tables, err := silver.Tables(con, cfg.SilverDb, source.Loans, year)
		if err != nil {
			return err
		}
		p := &clean.Pipeline{Rules: eras.ForYear(year), Bounds: bnds}
		for _, tb := range tables {
			if strings.HasSuffix(tb, "_clean") {
				continue
			}
			src := cfg.SilverDb + "." + tb
			md, e := clean.BuildTable(p, con, src, src+"_clean")
			if e != nil {
				return e
			}
			fmt.Printf("cleaned %s: %d in, %d out\n", src, md.In, md.Out)
		}
	}
	return nil
}

// runMatch links sellers to purchasers over a pooled view of the most
// authoritative loan table per year, then writes the crosswalk and audit
// tables for every round.
func runMatch(cfg *config.Config, con *chutils.Connect) error {
	minYear := cfg.MinYear
	if minYear < 2018 {
		minYear = 2018
	}
	if minYear > cfg.MaxYear {
		return fmt.Errorf("matching needs years 2018 on, have %d-%d", cfg.MinYear, cfg.MaxYear)
	}

	pool := make([]string, 0, cfg.MaxYear-minYear+1)
	for year := minYear; year <= cfg.MaxYear; year++ {
		tb, err := masterTable(con, cfg.SilverDb, year)
		if err != nil {
			return err
		}
		pool = append(pool, cfg.SilverDb+"."+tb)
	}

	view := cfg.MatchDb + ".loan_pool"
	if err := match.CreatePoolView(con, view, pool); err != nil {
		return err
	}

	sellers, purchasers, err := match.LoadPools(con, view, minYear, cfg.MaxYear)
	if err != nil {
		return err
	}
	eng := &match.Engine{Sellers: sellers, Purchasers: purchasers, Log: logrus.New()}
	st := &match.ChStore{Db: cfg.MatchDb, Con: con}
	if _, err = eng.Run(st, match.NRounds); err != nil {
		return err
	}
	for round := 1; round <= match.NRounds; round++ {
		if err = match.WriteMatchedFile(con, cfg.MatchDb, view, round); err != nil {
			return err
		}
	}
	return nil
}

// masterTable picks the most authoritative loan table for a year, e.g. the
// public snapshot over the modified LAR when both are loaded.
func masterTable(con *chutils.Connect, db string, year int) (string, error) {
	tables, err := silver.Tables(con, db, source.Loans, year)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "", fmt.Errorf("no %d loan tables in %s", year, db)
	}
	sort.Strings(tables)
	best, bestRank := "", -1
	for _, tb := range tables {
		if strings.HasSuffix(tb, "_clean") {
			continue
		}
		code, e := source.TypeCode(tb)
		if e != nil {
			continue
		}
		if r := source.Rank(code); r > bestRank {
			best, bestRank = tb, r
		}
	}
	if best == "" {
		return "", fmt.Errorf("no rankable %d loan table in %s", year, db)
	}
	return best, nil
}
