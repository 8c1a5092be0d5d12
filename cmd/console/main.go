package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	flag "github.com/spf13/pflag"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/cmd/console/config"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/chains"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/chains/ethereum"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/logger"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/distributor"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/protocols/poolregistry"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/streams/jsonrpc/client"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultClientEventBufferSize = 100
	eventLogSize                 = 50
	callTimeout                  = 10 * time.Second
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// EventLog is a thread-safe ring of the most recent server events.
type EventLog struct {
	mu     sync.RWMutex
	events []events.Event
	seq    uint64
}

func (l *EventLog) Append(ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if len(l.events) > eventLogSize {
		l.events = l.events[len(l.events)-eventLogSize:]
	}
	l.seq++
}

// Since returns the events appended after seq and the current sequence number.
func (l *EventLog) Since(seq uint64) ([]events.Event, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq >= l.seq {
		return nil, l.seq
	}
	n := int(min(l.seq-seq, uint64(len(l.events))))
	out := make([]events.Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out, l.seq
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	verbose := flag.Bool("verbose", false, "enable verbose (debug) logging")
	configPath := flag.String("config", "console.yaml", "Path to the configuration file.")
	flag.Parse()

	rootLogger := logger.New(logFile, *verbose)

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. CONFIG & CONTEXT ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		rootLogger.Error("Failed to load configuration", "path", *configPath, "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. INITIALIZE CLIENT ---
	rewards, err := client.NewClient(
		ctx,
		client.Config{
			URL:          cfg.RPCURL,
			Logger:       rootLogger.With("component", "jsonrpc-client"),
			BufferSize:   DefaultClientEventBufferSize,
			EventDecoder: ethereum.DecodeEventJSON,
			Subscribe:    true,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "chain_id", cfg.ChainID, "error", err)
		closeApp()
	}
	defer rewards.Close()

	// --- 4. START CONSOLE & EVENT LOOP ---
	eventLog := &EventLog{}
	c := &console{
		client:  rewards,
		chainID: cfg.ChainID,
		events:  eventLog,
		reader:  bufio.NewReader(os.Stdin),
		logger:  rootLogger,
	}

	fmt.Println(Green + "Starting Staking Rewards Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	go c.run(ctx)

	errCh := rewards.Err()
	for {
		select {
		case ev, ok := <-rewards.Events():
			if !ok {
				return
			}
			eventLog.Append(ev)

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

type console struct {
	client  *client.Client
	chainID uint64
	events  *EventLog
	reader  *bufio.Reader
	logger  *slog.Logger
}

// run handles user input and display.
func (c *console) run(ctx context.Context) {
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := c.reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}

		c.handleCommand(ctx, strings.TrimSpace(input))

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		c.reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "STAKING REWARDS CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Distributor Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s List Pools\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Find Pools %s(by Token Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Account Rewards %s(claimed / pending)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Custody Balances\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Submit Claim %s(signed authorization)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s7.%s Watch Events %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (c *console) handleCommand(ctx context.Context, input string) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var err error
	switch input {
	case "1":
		err = c.printStatus(callCtx)
	case "2":
		err = c.listPools(callCtx)
	case "3":
		err = c.findPoolsByToken(callCtx)
	case "4":
		err = c.accountRewards(callCtx)
	case "5":
		err = c.custodyBalances(callCtx)
	case "6":
		err = c.submitClaim(callCtx)
	case "7":
		c.watchEvents()
	case "q":
		exitConsole()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
	if err != nil {
		c.logger.Error("Command failed", "command", input, "error", err)
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
	}
}

// --- COMMAND HANDLERS ---

func (c *console) printStatus(ctx context.Context) error {
	epoch, err := c.client.CurrentEpochIndex(ctx)
	if err != nil {
		return err
	}
	interval, err := c.client.ClaimInterval(ctx)
	if err != nil {
		return err
	}
	pools, err := c.client.PoolLength(ctx)
	if err != nil {
		return err
	}
	statsAt, err := c.client.StatsUpdatedAt(ctx)
	if err != nil {
		return err
	}

	stats := "never"
	if statsAt != 0 {
		stats = time.Unix(int64(statsAt), 0).UTC().Format(time.RFC3339)
	}
	fmt.Printf("\n%sSTATUS  ::%s Chain %s%s%s | Epoch %s#%d%s | Interval %s%s%s | Pools %s%d%s\n",
		Green, Reset,
		Bold, chains.Name(new(big.Int).SetUint64(c.chainID)), Reset,
		Bold, epoch, Reset,
		Bold, time.Duration(interval)*time.Second, Reset,
		Bold, pools, Reset,
	)
	fmt.Printf("%sReward stats last updated: %s%s\n", Gray, stats, Reset)
	return nil
}

func (c *console) listPools(ctx context.Context) error {
	pools, err := c.client.AllPools(ctx)
	if err != nil {
		return err
	}
	header("POOL REGISTRY")
	printPools(pools)
	return nil
}

func (c *console) findPoolsByToken(ctx context.Context) error {
	fmt.Print("\n" + Bold + "[Find Pools] Enter Token Address (Hex): " + Reset)
	tok, ok := c.readAddress()
	if !ok {
		return nil
	}

	view, err := c.client.TokenPools(ctx)
	if err != nil {
		return err
	}
	var pids []uint64
	for i, t := range view.Tokens {
		if t == tok && i < len(view.Pools) {
			pids = view.Pools[i]
			break
		}
	}
	if len(pids) == 0 {
		fmt.Println(Yellow + "[INFO] Token has no pools in the registry." + Reset)
		return nil
	}

	pools := make([]poolregistry.Pool, 0, len(pids))
	for _, pid := range pids {
		p, err := c.client.Pool(ctx, pid)
		if err != nil {
			return err
		}
		pools = append(pools, p)
	}
	header(fmt.Sprintf("POOLS FOR %s", tok.Hex()))
	printPools(pools)
	return nil
}

func (c *console) accountRewards(ctx context.Context) error {
	fmt.Print("\n" + Bold + "[Account] Enter Account Address (Hex): " + Reset)
	user, ok := c.readAddress()
	if !ok {
		return nil
	}

	pools, err := c.client.AllPools(ctx)
	if err != nil {
		return err
	}

	header("REWARDS FOR " + user.Hex())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PID\tCLAIMED\tPENDING\tLAST CLAIM\t")
	fmt.Fprintln(w, "---\t-------\t-------\t----------\t")
	for _, p := range pools {
		claimed, err := c.client.UserClaimedReward(ctx, p.Pid, user)
		if err != nil {
			return err
		}
		pending, err := c.client.PendingReward(ctx, p.Pid, user)
		if err != nil {
			return err
		}
		last, err := c.client.UserLastClaimAt(ctx, p.Pid, user)
		if err != nil {
			return err
		}
		lastStr := "-"
		if last != 0 {
			lastStr = time.Unix(int64(last), 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t\n", p.Pid, claimed.Dec(), pending.Dec(), lastStr)
	}
	return w.Flush()
}

func (c *console) custodyBalances(ctx context.Context) error {
	tokens, err := c.client.Tokens(ctx)
	if err != nil {
		return err
	}

	header("CUSTODY BALANCES")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tTOKEN\tBALANCE\t")
	fmt.Fprintln(w, "------\t-----\t-------\t")
	for _, t := range tokens {
		balance, err := c.client.Balance(ctx, t.Address)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", t.Symbol, t.Address.Hex(), balance.Dec())
	}
	return w.Flush()
}

func (c *console) submitClaim(ctx context.Context) error {
	fmt.Print("\n" + Bold + "[Claim] Beneficiary Address: " + Reset)
	beneficiary, ok := c.readAddress()
	if !ok {
		return nil
	}
	fmt.Print(Bold + "[Claim] Pool ID: " + Reset)
	pid, ok := c.readUint()
	if !ok {
		return nil
	}
	pool, err := c.client.Pool(ctx, pid)
	if err != nil {
		return err
	}
	fmt.Print(Bold + "[Claim] Amount (base units): " + Reset)
	amount, err := uint256.FromDecimal(c.readLine())
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	fmt.Print(Bold + "[Claim] Epoch Index: " + Reset)
	epoch, ok := c.readUint()
	if !ok {
		return nil
	}
	fmt.Print(Bold + "[Claim] Signature (0x hex, 65 bytes): " + Reset)
	sig, err := hexutil.Decode(c.readLine())
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	receipt, err := c.client.Claim(ctx, beneficiary, distributor.ClaimRequest{
		Pid:         pid,
		RewardToken: pool.RewardToken,
		Amount:      amount,
		EpochIndex:  epoch,
		Signature:   sig,
	})
	switch {
	case errors.Is(err, distributor.ErrInvalidInterval):
		fmt.Println(Yellow + "[REJECTED] Claim interval has not elapsed for this account." + Reset)
		return nil
	case errors.Is(err, distributor.ErrAlreadyUsedSignature):
		fmt.Println(Yellow + "[REJECTED] This authorization has already been redeemed." + Reset)
		return nil
	case err != nil:
		return err
	}

	header("CLAIM SETTLED")
	fmt.Printf("Pool:        %d\n", receipt.Pid)
	fmt.Printf("Beneficiary: %s\n", receipt.Beneficiary.Hex())
	fmt.Printf("Amount:      %s%s%s\n", Green, receipt.Amount.Dec(), Reset)
	fmt.Printf("Digest:      %s\n", receipt.Digest.Hex())
	return nil
}

func (c *console) watchEvents() {
	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)

	stopCh := make(chan struct{})
	go func() {
		c.reader.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	_, seq := c.events.Since(0)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			var fresh []events.Event
			fresh, seq = c.events.Since(seq)
			for _, ev := range fresh {
				printEvent(ev)
			}
		}
	}
}

// --- HELPERS ---

func printPools(pools []poolregistry.Pool) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PID\tPOOL ADDRESS\tDEPOSIT TOKEN\tREWARD TOKEN\tSTATUS\t")
	fmt.Fprintln(w, "---\t------------\t-------------\t------------\t------\t")
	for _, p := range pools {
		status := Green + "ACTIVE" + Reset
		if p.Deprecated {
			status = Yellow + "DEPRECATED" + Reset
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n", p.Pid, p.Address.Hex(), p.DepositToken.Hex(), p.RewardToken.Hex(), status)
	}
	w.Flush()
}

func printEvent(ev events.Event) {
	ts := ev.At.Format("15:04:05.000")
	switch data := ev.Data.(type) {
	case distributor.Receipt:
		fmt.Printf("%s %sCLAIMED%s   pid=%d user=%s amount=%s epoch=%d\n",
			ts, Green, Reset, data.Pid, data.Beneficiary.Hex(), data.Amount.Dec(), data.EpochIndex)
	case distributor.Deposited:
		fmt.Printf("%s %sDEPOSIT%s   token=%s amount=%s\n", ts, Cyan, Reset, data.Token.Hex(), data.Amount.Dec())
	case poolregistry.PoolAdded:
		fmt.Printf("%s %sPOOL+%s     pid=%d address=%s\n", ts, Cyan, Reset, data.Pid, data.Address.Hex())
	case poolregistry.PoolRemoved:
		fmt.Printf("%s %sPOOL-%s     pid=%d address=%s\n", ts, Yellow, Reset, data.Pid, data.Address.Hex())
	default:
		fmt.Printf("%s %s%s%s %+v\n", ts, Gray, ev.Kind, Reset, ev.Data)
	}
}

func (c *console) readLine() string {
	input, _ := c.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (c *console) readAddress() (common.Address, bool) {
	input := c.readLine()
	if input == "" {
		return common.Address{}, false
	}
	if !common.IsHexAddress(input) {
		fmt.Printf(Red+"[ERROR] Invalid address: %q%s\n", input, Reset)
		return common.Address{}, false
	}
	return common.HexToAddress(input), true
}

func (c *console) readUint() (uint64, bool) {
	input := c.readLine()
	if input == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(input, 10, 64)
	if err != nil {
		fmt.Printf(Red+"[ERROR] Invalid number: %v%s\n", err, Reset)
		return 0, false
	}
	return v, true
}

func exitConsole() {
	fmt.Println(Yellow + "Exiting..." + Reset)
	os.Exit(0)
}
