package main

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/onedata/automation-examples/lambdas"
	"github.com/onedata/automation-examples/util"
)

func newStressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress <file id>...",
		Short: "Stress test a lambda server",
		Long: `Stress test a lambda server

Posts calculate-checksum batches for the given files to a running server,
from many goroutines at once.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := &stresser{}
			st.url, _ = cmd.Flags().GetString("url")
			st.algorithm, _ = cmd.Flags().GetString("algorithm")
			st.token, _ = cmd.Flags().GetString("token")
			n, _ := cmd.Flags().GetInt("n")
			count, _ := cmd.Flags().GetInt("count")
			return st.run(args, n, count)
		},
	}
	cmd.Flags().String("url", "http://localhost:8080", "base url of the server to test")
	cmd.Flags().String("algorithm", "md5", "checksum algorithm")
	cmd.Flags().String("token", "", "API key")
	cmd.Flags().Int("n", 10, "number of goroutines")
	cmd.Flags().Int("count", 100, "number of batches to post")
	return cmd
}

type stresser struct {
	url       string
	algorithm string
	token     string
	failed    int64
}

func (st *stresser) run(fileIDs []string, n, count int) error {
	req := lambdas.Request{Ctx: json.RawMessage(`{}`)}
	for _, id := range fileIDs {
		args, err := json.Marshal(map[string]interface{}{
			"file":      lambdas.AtmFile{FileID: id, Type: lambdas.TypeRegular},
			"algorithm": st.algorithm,
		})
		if err != nil {
			return err
		}
		req.ArgsBatch = append(req.ArgsBatch, args)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	starttime := time.Now()
	wg := sync.WaitGroup{}
	gate := util.NewGate(n)
	for i := 0; i < count; i++ {
		wg.Add(1)
		gate.Enter()
		go func(i int) {
			st.post(i, body)
			gate.Leave()
			wg.Done()
		}(i)
	}
	wg.Wait()
	runDuration := time.Since(starttime)
	log.Printf("Posted %d batches of %d jobs in %v, %.1f batches/s, %d failed",
		count, len(fileIDs), runDuration,
		float64(count)/runDuration.Seconds(), st.failed)
	if st.failed > 0 {
		return fmt.Errorf("%d batches failed", st.failed)
	}
	return nil
}

func (st *stresser) post(i int, body []byte) {
	req, err := http.NewRequest("POST", st.url+"/lambda/calculate-checksum", bytes.NewReader(body))
	if err != nil {
		log.Println(err)
		atomic.AddInt64(&st.failed, 1)
		return
	}
	if st.token != "" {
		req.Header.Set("X-Api-Key", st.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Println(err)
		atomic.AddInt64(&st.failed, 1)
		return
	}
	defer resp.Body.Close()
	text, _ := ioutil.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		log.Printf("batch %d: received status %d: %s", i, resp.StatusCode, text)
		atomic.AddInt64(&st.failed, 1)
		return
	}
	var out lambdas.Response
	if err := json.Unmarshal(text, &out); err != nil {
		log.Printf("batch %d: %s", i, err)
		atomic.AddInt64(&st.failed, 1)
		return
	}
	for _, res := range out.ResultsBatch {
		if res.Failed() {
			log.Printf("batch %d: %v", i, res.Exception)
		}
	}
}
