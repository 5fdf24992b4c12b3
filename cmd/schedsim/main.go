package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	silvernode "github.com/silvernodes/silvernode-sched"
	"github.com/silvernodes/silvernode-sched/kernel"
	"github.com/silvernodes/silvernode-sched/process"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
)

var (
	appConf  string
	harts    int
	procs    int
	jobs     int
	duration time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "schedsim",
	Short: "Simulated shared priority scheduler",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the kernel and run a demo workload",
	RunE: func(cmd *cobra.Command, args []string) error {
		silvernode.Setup(&silvernode.SetupParam{AppConf: appConf, Harts: harts})
		var finished atomic.Int64
		silvernode.BindPipeline(&silvernode.Pipeline{
			Start: func(k *kernel.Kernel) error {
				return workload(k, &finished)
			},
		})
		c, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if duration > 0 {
			var cancel context.CancelFunc
			c, cancel = context.WithTimeout(c, duration)
			defer cancel()
		}
		start := time.Now()
		if err := silvernode.Serve(c); err != nil {
			return err
		}
		fmt.Printf("%d coroutines finished in %s\n", finished.Load(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(silvernode.VERSION + "-" + silvernode.TITLE)
	},
}

var confCmd = &cobra.Command{
	Use:   "conf",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		silvernode.Setup(&silvernode.SetupParam{AppConf: appConf, Harts: harts})
		conf, err := silvernode.LoadConf()
		if err != nil {
			return err
		}
		text, err := conf.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

// yielder parks once and is woken by a user interrupt, like a blocking
// syscall completing.
type yielder struct {
	k     *kernel.Kernel
	pid   int
	polls int
	done  func()
}

func (y *yielder) Poll(w *process.Waker) process.PollState {
	y.polls++
	if y.polls == 1 {
		go func() {
			time.Sleep(time.Millisecond)
			if err := y.k.OnUserInterrupt(y.pid, w.Id()); err != nil {
				silvernode.Error(err)
			}
		}()
		return process.Pending
	}
	y.done()
	return process.Ready
}

func workload(k *kernel.Kernel, finished *atomic.Int64) error {
	prioNum := k.Conf().PrioNum
	for p := 0; p < procs; p++ {
		t, err := k.CreateProcess(fmt.Sprintf("proc-%d", p))
		if err != nil {
			return err
		}
		for j := 0; j < jobs; j++ {
			var f process.Future
			if j%3 == 0 {
				f = &yielder{k: k, pid: t.Pid(), done: func() { finished.Inc() }}
			} else {
				f = process.Once(func() { finished.Inc() })
			}
			if _, err := k.Submit(t.Pid(), f, (p+j)%prioNum); err != nil {
				return err
			}
		}
	}
	for j := 0; j < jobs; j++ {
		if _, err := k.Spawn(process.Once(func() { finished.Inc() }), j%prioNum, process.KernelSyscall); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	runCmd.Flags().StringVarP(&appConf, "appconf", "c", "", "path of the app yaml")
	runCmd.Flags().IntVar(&harts, "harts", 0, "number of harts (overrides sched.harts)")
	runCmd.Flags().IntVar(&procs, "procs", 4, "number of demo processes")
	runCmd.Flags().IntVar(&jobs, "jobs", 32, "coroutines per process")
	runCmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "how long to run, 0 until interrupted")
	confCmd.Flags().StringVarP(&appConf, "appconf", "c", "", "path of the app yaml")
	confCmd.Flags().IntVar(&harts, "harts", 0, "number of harts (overrides sched.harts)")
	rootCmd.AddCommand(runCmd, versionCmd, confCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
