package iso8583

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ensure Adapter implements the port
var _ ports.ProcessorAdapter = (*Adapter)(nil)

// Config describes one direct processor link
type Config struct {
	ProcessorName  string
	Addr           string
	TerminalID     string
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
}

// Adapter sends authorization messages over a persistent ISO 8583 connection.
// The connection is dialed on first use and redialed after a send failure.
type Adapter struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	stan   atomic.Uint32

	mu   sync.Mutex
	conn *connection.Connection
}

// NewAdapter creates a direct adapter; no connection is opened until the first call
func NewAdapter(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.TerminalID == "" {
		cfg.TerminalID = "ORCH0001"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	a := &Adapter{cfg: cfg, logger: logger, now: time.Now}
	seed := uuid.New()
	a.stan.Store(uint32(seed[0])<<16 | uint32(seed[1])<<8 | uint32(seed[2]))
	return a
}

// Name returns the processor name
func (a *Adapter) Name() string {
	return a.cfg.ProcessorName
}

// Charge sends a financial request (0200)
func (a *Adapter) Charge(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.exchange(ctx, mtiFinancial, "000000", req)
}

// PreAuthorize sends an authorization request (0100)
func (a *Adapter) PreAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.exchange(ctx, mtiAuthorization, "000000", req)
}

// ReAuthorize sends an incremental authorization (0100, processing code 020000)
func (a *Adapter) ReAuthorize(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.exchange(ctx, mtiAuthorization, "020000", req)
}

// Capture sends a completion advice (0220) for the original authorization
func (a *Adapter) Capture(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.exchange(ctx, mtiCompletionAdvice, "000000", req)
}

// Void sends a reversal (0400) for the original transaction
func (a *Adapter) Void(ctx context.Context, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	return a.exchange(ctx, mtiReversal, "000000", req)
}

// Close closes the connection if one is open
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}

func (a *Adapter) exchange(ctx context.Context, mti, processingCode string, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	msg, stan, err := a.buildMessage(mti, processingCode, req)
	if err != nil {
		return nil, err
	}

	conn, err := a.connection()
	if err != nil {
		return nil, &domain.ReachabilityError{ProcessorName: a.cfg.ProcessorName, Err: err}
	}

	type result struct {
		msg *iso8583.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := conn.Send(msg)
		done <- result{msg: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		a.logger.Warn("iso8583 response not received before deadline",
			zap.String("processor", a.cfg.ProcessorName),
			zap.String("mti", mti),
			zap.String("stan", stan),
		)
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			a.reset(conn)
			return nil, fmt.Errorf("send %s to %s: %w", mti, a.cfg.ProcessorName, r.err)
		}
		return a.parseResponse(r.msg, req)
	}
}

// connection returns the open connection, dialing it when needed
func (a *Adapter) connection() (*connection.Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn, nil
	}

	conn, err := connection.New(a.cfg.Addr, Spec, ReadMessageLength, WriteMessageLength,
		connection.SendTimeout(a.cfg.SendTimeout),
		connection.ConnectTimeout(a.cfg.ConnectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create connection to %s: %w", a.cfg.Addr, err)
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", a.cfg.Addr, err)
	}

	a.logger.Info("iso8583 connection established",
		zap.String("processor", a.cfg.ProcessorName),
		zap.String("addr", a.cfg.Addr),
	)
	a.conn = conn
	return conn, nil
}

// reset drops conn so the next call redials
func (a *Adapter) reset(conn *connection.Connection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == conn {
		_ = conn.Close()
		a.conn = nil
	}
}

func (a *Adapter) nextSTAN() string {
	return fmt.Sprintf("%06d", a.stan.Add(1)%1_000_000)
}

func (a *Adapter) buildMessage(mti, processingCode string, req *domain.ProcessorRequest) (*iso8583.Message, string, error) {
	amount, err := minorUnits(req.TotalAmount, req.Currency)
	if err != nil {
		return nil, "", err
	}
	currency, ok := numericCurrency[strings.ToUpper(req.Currency)]
	if !ok {
		return nil, "", fmt.Errorf("currency %s has no ISO 4217 numeric code", req.Currency)
	}

	now := a.now().UTC()
	stan := a.nextSTAN()
	cardRef := req.TransactionCardID
	if cardRef == "" {
		cardRef = req.TokenID
	}

	values := map[int]string{
		fieldProcessingCode:   processingCode,
		fieldAmount:           amount,
		fieldTransmissionTime: now.Format("0102150405"),
		fieldSTAN:             stan,
		fieldLocalTime:        now.Format("150405"),
		fieldPOSEntryMode:     "010",
		fieldTerminalID:       fixedWidth(a.cfg.TerminalID, 8),
		fieldMerchantID:       fixedWidth(req.MerchantID, 15),
		fieldCurrency:         currency,
	}
	if cardRef != "" {
		values[fieldCardReference] = cardRef
	}
	if mti == mtiCompletionAdvice || mti == mtiReversal {
		if req.TicketNumber == "" {
			return nil, "", fmt.Errorf("%s requires the original ticket number", mti)
		}
		values[fieldRRN] = rrn(req.TicketNumber)
		values[fieldOriginalData] = fixedWidth(originalMTI(mti)+req.TicketNumber, 42)
	}

	msg := iso8583.NewMessage(Spec)
	msg.MTI(mti)
	for id, v := range values {
		if err := msg.Field(id, v); err != nil {
			return nil, "", fmt.Errorf("set field %d: %w", id, err)
		}
	}
	return msg, stan, nil
}

func (a *Adapter) parseResponse(msg *iso8583.Message, req *domain.ProcessorRequest) (*domain.ProviderResponse, error) {
	mti, err := msg.GetMTI()
	if err != nil {
		return nil, fmt.Errorf("read response MTI: %w", err)
	}
	code, _ := msg.GetString(fieldResponseCode)
	ticket, _ := msg.GetString(fieldRRN)
	approval, _ := msg.GetString(fieldApprovalCode)

	if code != approvedResponseCode {
		return nil, &domain.ProcessorError{
			ProcessorName:    a.cfg.ProcessorName,
			ProcessorCode:    code,
			ProcessorMessage: responseText(code),
			TicketNumber:     ticket,
			ResponseCode:     code,
			ResponseText:     responseText(code),
			ApprovalCode:     approval,
		}
	}

	if ticket == "" {
		ticket = req.TicketNumber
	}
	return &domain.ProviderResponse{
		ApprovedAmount:       req.TotalAmount,
		TicketNumber:         ticket,
		TransactionReference: req.TransactionReference,
		ApprovalCode:         approval,
		ResponseCode:         code,
		ResponseText:         responseText(code),
		Metadata:             map[string]string{"mti": mti},
	}, nil
}

// minorUnits renders amount as 12 digits in the currency's minor unit
func minorUnits(amount decimal.Decimal, currency string) (string, error) {
	if amount.IsNegative() {
		return "", fmt.Errorf("negative amount %s", amount)
	}
	exp := int32(2)
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		exp = 0
	}
	units := amount.Shift(exp).Round(0)
	if units.GreaterThan(decimal.RequireFromString("999999999999")) {
		return "", fmt.Errorf("amount %s does not fit field 4", amount)
	}
	return fmt.Sprintf("%012d", units.IntPart()), nil
}

// rrn fits a ticket number into the 12-character field 37, zero-filled on the left
func rrn(ticket string) string {
	if len(ticket) > 12 {
		return ticket[len(ticket)-12:]
	}
	return strings.Repeat("0", 12-len(ticket)) + ticket
}

func fixedWidth(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func originalMTI(mti string) string {
	if mti == mtiCompletionAdvice {
		return mtiAuthorization
	}
	return mtiFinancial
}

var numericCurrency = map[string]string{
	"USD": "840",
	"COP": "170",
	"CLP": "152",
	"PEN": "604",
	"MXN": "484",
	"BRL": "986",
	"CRC": "188",
	"GTQ": "320",
	"HNL": "340",
	"NIO": "558",
	"PAB": "590",
}

var zeroDecimalCurrencies = map[string]bool{"CLP": true}

var responseTexts = map[string]string{
	"00": "Approved",
	"05": "Do not honor",
	"14": "Invalid card number",
	"51": "Insufficient funds",
	"54": "Expired card",
	"57": "Transaction not permitted to cardholder",
	"61": "Exceeds withdrawal amount limit",
	"91": "Issuer or switch inoperative",
	"96": "System malfunction",
}

func responseText(code string) string {
	if text, ok := responseTexts[code]; ok {
		return text
	}
	return "Declined"
}
