// cartctl is a CLI tool for exercising cartd by hand or from scripts.
// Each command performs a single operation against one cart session.
//
// Commands:
//
//	cartctl session -server URL
//	cartctl get -session ID [-refresh]
//	cartctl add -session ID -merchandise GID [-qty N] [-price 10.00] [-currency USD]
//	cartctl update -session ID -line ID -qty N
//	cartctl remove -session ID -line ID
//	cartctl status -session ID -line ID
//	cartctl checkout -session ID [-timeout 5s]
//	cartctl online|offline -session ID
//	cartctl retry -session ID [-line ID]
//	cartctl notifications -session ID
//	cartctl reset -session ID
//
// Examples:
//
//	export CART_SESSION=$(cartctl session -q)
//	LINE=$(cartctl add -merchandise gid://shopify/ProductVariant/1 -qty 2 -q)
//	cartctl update -line "$LINE" -qty 3
//	cartctl checkout
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// sessionHeader carries the cart session id in both directions.
const sessionHeader = "Cart-Session"

// Global flags (apply to all commands)
var (
	serverURL string
	sessionID string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "session":
		runSession(args)
	case "get":
		runGet(args)
	case "add":
		runAdd(args)
	case "update":
		runUpdate(args)
	case "remove":
		runRemove(args)
	case "status":
		runStatus(args)
	case "checkout":
		runCheckout(args)
	case "online":
		runConnectivity("online", true, args)
	case "offline":
		runConnectivity("offline", false, args)
	case "retry":
		runRetry(args)
	case "notifications":
		runNotifications(args)
	case "reset":
		runReset(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - cartd cart session tool

Usage:
  cartctl <command> [options]

Commands:
  session        Start a session and print its id
  get            Show the cart
  add            Add merchandise to the cart
  update         Change a line quantity (0 removes)
  remove         Remove a line
  status         Show the sync status of a line
  checkout       Flush pending changes and print the checkout URL
  online         Mark the session online
  offline        Mark the session offline
  retry          Retry failed lines
  notifications  Drain pending notifications
  reset          Forget the cart

The session id is read from -session or CART_SESSION.

Examples:
  # Start a session and keep its id
  export CART_SESSION=$(cartctl session -q)

  # Add two units and capture the line id
  LINE=$(cartctl add -merchandise gid://shopify/ProductVariant/1 -qty 2 -q)

  # Change quantity, then check out
  cartctl update -line "$LINE" -qty 3
  URL=$(cartctl checkout -q)

Run 'cartctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags shared by every command.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOr("CARTD_URL", "http://localhost:8080"), "cartd base URL")
	fs.StringVar(&sessionID, "session", os.Getenv("CART_SESSION"), "Cart session id")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the result")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runSession(args []string) {
	fs := newFlagSet("session", "session [options]")
	parse(fs, args)

	if _, err := doRequest("GET", "/cart", nil); err != nil {
		fatal("Failed to start session: %v", err)
	}
	if quiet {
		fmt.Println(sessionID)
		return
	}
	printSuccess("Session ready")
	fmt.Printf("  Session: %s%s%s\n", colorCyan, sessionID, colorReset)
}

func runGet(args []string) {
	fs := newFlagSet("get", "get [options]")
	var refresh bool
	fs.BoolVar(&refresh, "refresh", false, "Bypass the cached cart")
	parse(fs, args)

	path := "/cart"
	if refresh {
		path += "?refresh=true"
	}
	resp, err := doRequest("GET", path, nil)
	if err != nil {
		fatal("Failed to get cart: %v", err)
	}

	if quiet {
		fmt.Println(badge(resp))
		return
	}
	printSuccess("Cart retrieved")
	printCart(resp)
}

func runAdd(args []string) {
	fs := newFlagSet("add", "add -merchandise GID [options]")
	var merchandiseID, price, currency, title string
	var quantity int
	fs.StringVar(&merchandiseID, "merchandise", "", "Merchandise (variant) id (required)")
	fs.IntVar(&quantity, "qty", 1, "Quantity")
	fs.StringVar(&price, "price", "0", "Unit price shown until the server answers")
	fs.StringVar(&currency, "currency", "USD", "Currency code")
	fs.StringVar(&title, "title", "", "Line title shown until the server answers")
	parse(fs, args)

	if merchandiseID == "" {
		fs.Usage()
		os.Exit(1)
	}

	reqBody := map[string]interface{}{
		"merchandiseId": merchandiseID,
		"quantity":      quantity,
		"unitPrice":     map[string]string{"amount": price, "currencyCode": currency},
		"title":         title,
	}
	resp, err := doRequest("POST", "/cart/lines", reqBody)
	if err != nil {
		fatal("Failed to add line: %v", err)
	}

	lineID := findLine(resp, merchandiseID)
	if quiet {
		fmt.Println(lineID)
		return
	}
	printSuccess("Line added")
	fmt.Printf("  Line: %s%s%s\n", colorCyan, lineID, colorReset)
	printCart(resp)
}

func runUpdate(args []string) {
	fs := newFlagSet("update", "update -line ID -qty N [options]")
	var lineID string
	var quantity int
	fs.StringVar(&lineID, "line", "", "Line id (required)")
	fs.IntVar(&quantity, "qty", -1, "New quantity (required, 0 removes)")
	parse(fs, args)

	if lineID == "" || quantity < 0 {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("PATCH", linePath(lineID), map[string]int{"quantity": quantity})
	if err != nil {
		fatal("Failed to update line: %v", err)
	}

	if quiet {
		fmt.Println(badge(resp))
		return
	}
	if quantity == 0 {
		printSuccess("Line removed")
	} else {
		printSuccess("Update queued")
	}
	printCart(resp)
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "remove -line ID [options]")
	var lineID string
	fs.StringVar(&lineID, "line", "", "Line id (required)")
	parse(fs, args)

	if lineID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("DELETE", linePath(lineID), nil)
	if err != nil {
		fatal("Failed to remove line: %v", err)
	}

	if quiet {
		fmt.Println(badge(resp))
		return
	}
	printSuccess("Line removed")
	printCart(resp)
}

func runStatus(args []string) {
	fs := newFlagSet("status", "status -line ID [options]")
	var lineID string
	fs.StringVar(&lineID, "line", "", "Line id (required)")
	parse(fs, args)

	if lineID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("GET", linePath(lineID)+"/status", nil)
	if err != nil {
		fatal("Failed to get line status: %v", err)
	}

	status, _ := resp["status"].(string)
	if quiet {
		fmt.Println(status)
		return
	}
	printSuccess("Line status")
	fmt.Printf("  Status: %s%s%s\n", statusColor(status), status, colorReset)
	if desired, ok := resp["desiredQuantity"].(float64); ok {
		fmt.Printf("  Desired quantity: %d\n", int(desired))
	}
	if retries, ok := resp["retryCount"].(float64); ok && retries > 0 {
		fmt.Printf("  Retries: %d\n", int(retries))
	}
}

func runCheckout(args []string) {
	fs := newFlagSet("checkout", "checkout [options]")
	var timeout time.Duration
	fs.DurationVar(&timeout, "timeout", 0, "Flush timeout (0 uses the server default)")
	parse(fs, args)

	var reqBody interface{}
	if timeout > 0 {
		reqBody = map[string]int64{"timeoutMs": timeout.Milliseconds()}
	}
	resp, err := doRequest("POST", "/cart/checkout", reqBody)
	if err != nil {
		fatal("Checkout failed: %v", err)
	}

	checkoutURL, _ := resp["checkoutUrl"].(string)
	if quiet {
		fmt.Println(checkoutURL)
		return
	}
	printSuccess("Cart synced")
	fmt.Printf("  Checkout URL: %s%s%s\n", colorBlue, checkoutURL, colorReset)
}

func runConnectivity(name string, online bool, args []string) {
	fs := newFlagSet(name, name+" [options]")
	parse(fs, args)

	if _, err := doRequest("POST", "/cart/connectivity", map[string]bool{"online": online}); err != nil {
		fatal("Failed to set connectivity: %v", err)
	}
	printSuccess("Session is %s", name)
}

func runRetry(args []string) {
	fs := newFlagSet("retry", "retry [-line ID] [options]")
	var lineID string
	fs.StringVar(&lineID, "line", "", "Line id (default: every failed line)")
	parse(fs, args)

	var reqBody interface{}
	if lineID != "" {
		reqBody = map[string]string{"lineId": lineID}
	}
	resp, err := doRequest("POST", "/cart/retry", reqBody)
	if err != nil {
		fatal("Retry failed: %v", err)
	}

	retried, _ := resp["retried"].([]interface{})
	if quiet {
		for _, id := range retried {
			fmt.Println(id)
		}
		return
	}
	if len(retried) == 0 {
		printWarning("Nothing to retry")
		return
	}
	printSuccess("Retrying %d line(s)", len(retried))
	for _, id := range retried {
		fmt.Printf("  - %v\n", id)
	}
}

func runNotifications(args []string) {
	fs := newFlagSet("notifications", "notifications [options]")
	parse(fs, args)

	resp, err := doRequest("GET", "/cart/notifications", nil)
	if err != nil {
		fatal("Failed to get notifications: %v", err)
	}

	notes, _ := resp["notifications"].([]interface{})
	if len(notes) == 0 {
		printInfo("No notifications")
		return
	}
	for _, n := range notes {
		m, ok := n.(map[string]interface{})
		if !ok {
			continue
		}
		kind, _ := m["kind"].(string)
		message, _ := m["message"].(string)
		if quiet {
			fmt.Printf("%s\t%s\n", kind, message)
			continue
		}
		printError("[%s] %s", kind, message)
	}
}

func runReset(args []string) {
	fs := newFlagSet("reset", "reset [options]")
	parse(fs, args)

	if _, err := doRequest("DELETE", "/cart", nil); err != nil {
		fatal("Failed to reset cart: %v", err)
	}
	printSuccess("Cart reset")
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	reqURL := strings.TrimSuffix(serverURL, "/") + path
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if id := resp.Header.Get(sessionHeader); id != "" && id != sessionID {
		if sessionID != "" {
			printWarning("Session %s was replaced by %s", sessionID, id)
		}
		sessionID = id
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return result, nil
}

// linePath escapes the line id; Storefront ids contain slashes.
func linePath(lineID string) string {
	return "/cart/lines/" + url.PathEscape(lineID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func badge(resp map[string]interface{}) int {
	q, _ := resp["quantity"].(float64)
	return int(q)
}

func cartLines(resp map[string]interface{}) []map[string]interface{} {
	cart, ok := resp["cart"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, _ := cart["lines"].([]interface{})
	lines := make([]map[string]interface{}, 0, len(raw))
	for _, l := range raw {
		if m, ok := l.(map[string]interface{}); ok {
			lines = append(lines, m)
		}
	}
	return lines
}

// findLine returns the id of the line holding merchandiseID.
func findLine(resp map[string]interface{}, merchandiseID string) string {
	for _, l := range cartLines(resp) {
		if l["merchandiseId"] == merchandiseID {
			id, _ := l["id"].(string)
			return id
		}
	}
	return ""
}

func printCart(resp map[string]interface{}) {
	if quiet {
		return
	}
	fmt.Printf("  Items: %s%d%s\n", colorCyan, badge(resp), colorReset)

	cart, ok := resp["cart"].(map[string]interface{})
	if !ok {
		fmt.Printf("  %s(no cart yet)%s\n", colorGray, colorReset)
		return
	}
	for _, l := range cartLines(resp) {
		id, _ := l["id"].(string)
		title, _ := l["title"].(string)
		status, _ := l["status"].(string)
		qty, _ := l["quantity"].(float64)
		fmt.Printf("    - %s x%d %s %s[%s]%s %s%s%s\n",
			title, int(qty), formatMoney(l["totalAmount"]),
			statusColor(status), status, colorReset,
			colorGray, id, colorReset)
	}
	fmt.Printf("  Total: %s%s%s\n", colorGreen, formatMoney(cart["totalAmount"]), colorReset)
	if online, ok := resp["online"].(bool); ok && !online {
		printWarning("Session is offline")
	}
}

func statusColor(status string) string {
	switch status {
	case "error":
		return colorRed
	case "retrying", "queued", "syncing":
		return colorYellow
	default:
		return colorGray
	}
}

func formatMoney(v interface{}) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("%v %v", m["amount"], m["currencyCode"])
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	codeColor := colorGreen
	if status >= 400 {
		codeColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, codeColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
	}
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
