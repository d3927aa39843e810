package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"CoverLedger/internal/core"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/oracle"
	"CoverLedger/internal/query"
	"CoverLedger/internal/state"
)

// Server is the HTTP/JSON API. Writes are submitted to the core loop and
// processed in order; reads either go through the loop (live state) or the
// projection tables (history, listings).
type Server struct {
	loop    *core.Loop
	queries *query.Service
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func New(loop *core.Loop, queries *query.Service, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		loop:    loop,
		queries: queries,
		metrics: metrics,
		logger:  logger,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	v1 := r.Group("/v1")
	{
		v1.POST("/wallets/fund", s.fundWallet)

		v1.POST("/contracts", s.createContract)
		v1.GET("/contracts", s.listContracts)
		v1.GET("/contracts/:id", s.getContract)
		v1.GET("/contracts/:id/history", s.contractHistory)
		v1.POST("/contracts/:id/purchase", s.purchase)
		v1.POST("/contracts/:id/beneficiary", s.changeBeneficiary)
		v1.POST("/contracts/:id/fee-receiver", s.changeFeeReceiver)
		v1.POST("/contracts/:id/trigger", s.trigger)
		v1.POST("/contracts/:id/claim", s.claim)
		v1.POST("/contracts/:id/withdraw", s.withdraw)

		v1.GET("/contracts/:id/whitelist", s.whitelistPage)
		v1.POST("/contracts/:id/whitelist", s.whitelistAdd)
		v1.DELETE("/contracts/:id/whitelist/:buyer", s.whitelistRemove)
		v1.POST("/contracts/:id/whitelist/batch", s.whitelistBatch)
		v1.POST("/contracts/:id/whitelist/mode", s.whitelistMode)

		v1.GET("/users/:address/contracts", s.userContracts)
		v1.GET("/users/:address/balances", s.userBalances)
		v1.GET("/users/:address/journal", s.userJournal)

		v1.GET("/automation", s.automationStatus)
		v1.GET("/automation/runs", s.automationRuns)

		admin := v1.Group("/admin")
		{
			admin.POST("/automation/configure", s.configureAutomation)
			admin.POST("/automation/pause", s.pauseAutomation)
			admin.POST("/recover", s.recoverAsset)
			admin.POST("/test-price", s.setTestPrice)
			admin.POST("/oracle/mode", s.setOracleMode)
			admin.GET("/integrity", s.integrity)
		}
	}

	return r
}

// --- middleware ---

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	}
}

// --- request plumbing ---

func (s *Server) actor(c *gin.Context) (common.Address, bool) {
	raw := c.GetHeader("X-Actor-Address")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-Actor-Address header"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func idemKey(c *gin.Context) string {
	return c.GetHeader("X-Idempotency-Key")
}

func contractID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return 0, false
	}
	return id, true
}

func pathAddress(c *gin.Context, param string) (common.Address, bool) {
	raw := c.Param(param)
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// statusFor maps rejection kinds to HTTP statuses.
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindAuthorization:
		return http.StatusForbidden
	case core.KindStateConflict:
		return http.StatusConflict
	case core.KindFunds:
		return http.StatusPaymentRequired
	case core.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// contractJSON is the wire shape of live contract state.
type contractJSON struct {
	ContractID       uint64 `json:"contract_id"`
	Seller           string `json:"seller"`
	Buyer            string `json:"buyer,omitempty"`
	Beneficiary      string `json:"beneficiary,omitempty"`
	FeeReceiver      string `json:"fee_receiver"`
	TriggerSymbol    string `json:"trigger_symbol"`
	TriggerPrice     int64  `json:"trigger_price"`
	StartDate        int64  `json:"start_date"`
	EndDate          int64  `json:"end_date"`
	ReserveIsToken   bool   `json:"reserve_is_token"`
	ReserveSymbol    string `json:"reserve_symbol"`
	ReserveAmount    int64  `json:"reserve_amount"`
	InsuranceFee     int64  `json:"insurance_fee"`
	AutoExecute      bool   `json:"auto_execute"`
	WhitelistEnabled bool   `json:"whitelist_enabled"`
	Status           string `json:"status"`
	ObservedPrice    int64  `json:"observed_price,omitempty"`
}

func toContractJSON(c *state.Contract) contractJSON {
	out := contractJSON{
		ContractID:       c.ID,
		Seller:           c.Seller.Hex(),
		FeeReceiver:      c.FeeReceiver.Hex(),
		TriggerSymbol:    c.TriggerSymbol,
		TriggerPrice:     c.TriggerPrice,
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		ReserveIsToken:   c.ReserveIsToken,
		ReserveSymbol:    c.ReserveSymbol,
		ReserveAmount:    c.ReserveAmount,
		InsuranceFee:     c.InsuranceFee,
		AutoExecute:      c.AutoExecute,
		WhitelistEnabled: c.WhitelistEnabled,
		Status:           c.Status.String(),
		ObservedPrice:    c.TriggerObservedPrice,
	}
	if c.IsPurchased() {
		out.Buyer = c.Buyer.Hex()
		out.Beneficiary = c.Beneficiary.Hex()
	}
	return out
}

// --- wallet ---

type fundWalletRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

func (s *Server) fundWallet(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	var req fundWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, e.FundWallet(actor, req.Asset, req.Amount, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- contract lifecycle ---

type createContractRequest struct {
	FeeReceiver   string `json:"fee_receiver"`
	TriggerSymbol string `json:"trigger_symbol" binding:"required"`
	TriggerPrice  int64  `json:"trigger_price" binding:"required"`
	StartDate     int64  `json:"start_date" binding:"required"`
	EndDate       int64  `json:"end_date" binding:"required"`
	ReserveSymbol string `json:"reserve_symbol" binding:"required"`
	ReserveAmount int64  `json:"reserve_amount" binding:"required"`
	InsuranceFee  int64  `json:"insurance_fee" binding:"required"`
	AutoExecute   bool   `json:"auto_execute"`
	Whitelist     bool   `json:"whitelist"`
}

func (s *Server) createContract(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := core.CreateParams{
		Seller:        actor,
		TriggerSymbol: req.TriggerSymbol,
		TriggerPrice:  req.TriggerPrice,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		ReserveSymbol: req.ReserveSymbol,
		ReserveAmount: req.ReserveAmount,
		InsuranceFee:  req.InsuranceFee,
		AutoExecute:   req.AutoExecute,
		Whitelist:     req.Whitelist,
	}
	if req.FeeReceiver != "" {
		if !common.IsHexAddress(req.FeeReceiver) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fee_receiver"})
			return
		}
		params.FeeReceiver = common.HexToAddress(req.FeeReceiver)
	}

	id, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return e.CreateContract(params, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"contract_id": id})
}

func (s *Server) getContract(c *gin.Context) {
	id, ok := contractID(c)
	if !ok {
		return
	}

	value, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return e.GetContract(id)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractJSON(value.(*state.Contract)))
}

func (s *Server) listContracts(c *gin.Context) {
	var status *string
	if raw := c.Query("status"); raw != "" {
		status = &raw
	}
	var participant *common.Address
	if raw := c.Query("participant"); raw != "" {
		if !common.IsHexAddress(raw) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant"})
			return
		}
		addr := common.HexToAddress(raw)
		participant = &addr
	}
	limit := queryInt(c, "limit", 50)
	var afterID *uint64
	if raw := c.Query("after_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after_id"})
			return
		}
		afterID = &id
	}

	contracts, err := s.queries.ListContracts(c.Request.Context(), status, participant, limit, afterID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

func (s *Server) contractHistory(c *gin.Context) {
	id, ok := contractID(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 100)
	var afterSeq *int64
	if raw := c.Query("after_sequence"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after_sequence"})
			return
		}
		afterSeq = &seq
	}

	history, err := s.queries.GetContractHistory(c.Request.Context(), id, limit, afterSeq)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

type purchaseRequest struct {
	Beneficiary string `json:"beneficiary"`
	FeeAmount   int64  `json:"fee_amount" binding:"required"`
}

func (s *Server) purchase(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var beneficiary common.Address
	if req.Beneficiary != "" {
		if !common.IsHexAddress(req.Beneficiary) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid beneficiary"})
			return
		}
		beneficiary = common.HexToAddress(req.Beneficiary)
	}

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, e.PurchaseInsurance(actor, id, beneficiary, req.FeeAmount, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type addressRequest struct {
	Address string `json:"address" binding:"required"`
}

func (s *Server) changeBeneficiary(c *gin.Context) {
	s.contractAddressOp(c, func(e *core.Engine, actor common.Address, id uint64, addr common.Address, key string, now time.Time) error {
		return e.ChangeBeneficiary(actor, id, addr, key, now)
	})
}

func (s *Server) changeFeeReceiver(c *gin.Context) {
	s.contractAddressOp(c, func(e *core.Engine, actor common.Address, id uint64, addr common.Address, key string, now time.Time) error {
		return e.ChangeFeeReceiver(actor, id, addr, key, now)
	})
}

func (s *Server) contractAddressOp(c *gin.Context, op func(*core.Engine, common.Address, uint64, common.Address, string, time.Time) error) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	addr := common.HexToAddress(req.Address)

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, op(e, actor, id, addr, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) trigger(c *gin.Context) {
	s.contractOp(c, func(e *core.Engine, actor common.Address, id uint64, key string, now time.Time) error {
		return e.TriggerPayout(actor, id, key, now)
	})
}

func (s *Server) claim(c *gin.Context) {
	s.contractOp(c, func(e *core.Engine, actor common.Address, id uint64, key string, now time.Time) error {
		return e.ClaimPayout(actor, id, key, now)
	})
}

func (s *Server) withdraw(c *gin.Context) {
	s.contractOp(c, func(e *core.Engine, actor common.Address, id uint64, key string, now time.Time) error {
		return e.WithdrawReserve(actor, id, key, now)
	})
}

func (s *Server) contractOp(c *gin.Context, op func(*core.Engine, common.Address, uint64, string, time.Time) error) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, op(e, actor, id, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- whitelist ---

func (s *Server) whitelistPage(c *gin.Context) {
	id, ok := contractID(c)
	if !ok {
		return
	}
	offset := queryInt(c, "offset", 0)
	limit := queryInt(c, "limit", 100)

	value, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		buyers, hasMore, err := e.WhitelistPage(id, offset, limit)
		if err != nil {
			return nil, err
		}
		hexed := make([]string, len(buyers))
		for i, b := range buyers {
			hexed[i] = b.Hex()
		}
		return gin.H{"buyers": hexed, "has_more": hasMore}, nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

func (s *Server) whitelistAdd(c *gin.Context) {
	s.contractAddressOp(c, func(e *core.Engine, actor common.Address, id uint64, addr common.Address, key string, now time.Time) error {
		return e.AddToWhitelist(actor, id, addr, key, now)
	})
}

func (s *Server) whitelistRemove(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	buyer, ok := pathAddress(c, "buyer")
	if !ok {
		return
	}

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, e.RemoveFromWhitelist(actor, id, buyer, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type whitelistBatchRequest struct {
	Action string   `json:"action" binding:"required"`
	Buyers []string `json:"buyers" binding:"required"`
}

func (s *Server) whitelistBatch(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	var req whitelistBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Action != "add" && req.Action != "remove" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be add or remove"})
		return
	}

	buyers := make([]common.Address, 0, len(req.Buyers))
	for _, raw := range req.Buyers {
		if !common.IsHexAddress(raw) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buyer address " + raw})
			return
		}
		buyers = append(buyers, common.HexToAddress(raw))
	}

	value, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		applied, skipped, err := e.BatchUpdateWhitelist(actor, id, req.Action, buyers, idemKey(c), now)
		if err != nil {
			return nil, err
		}
		return gin.H{"applied": applied, "skipped": skipped}, nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

type whitelistModeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) whitelistMode(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := contractID(c)
	if !ok {
		return
	}
	var req whitelistModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, e.SetWhitelistEnabled(actor, id, *req.Enabled, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- user reads ---

func (s *Server) userContracts(c *gin.Context) {
	user, ok := pathAddress(c, "address")
	if !ok {
		return
	}

	value, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		contracts := e.ContractsByUser(user)
		out := make([]contractJSON, len(contracts))
		for i, ct := range contracts {
			out[i] = toContractJSON(ct)
		}
		return out, nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": value})
}

func (s *Server) userBalances(c *gin.Context) {
	user, ok := pathAddress(c, "address")
	if !ok {
		return
	}

	balances, err := s.queries.GetWalletBalances(c.Request.Context(), user)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (s *Server) userJournal(c *gin.Context) {
	user, ok := pathAddress(c, "address")
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 100)
	var afterSeq *int64
	if raw := c.Query("after_sequence"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after_sequence"})
			return
		}
		afterSeq = &seq
	}

	entries, err := s.queries.GetJournalHistory(c.Request.Context(), user, limit, afterSeq)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"journal": entries})
}

// --- automation ---

func (s *Server) automationStatus(c *gin.Context) {
	value, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		policy := e.AutomationPolicy()
		probe := e.ProbeAutomation(now)
		return gin.H{
			"enabled":           policy.Enabled,
			"paused":            policy.Paused,
			"gas_limit":         policy.GasLimit,
			"max_batch_size":    policy.MaxBatchSize,
			"check_interval":    policy.CheckInterval,
			"last_global_check": policy.LastGlobalCheck,
			"total_triggered":   policy.TotalTriggered,
			"total_runs":        policy.TotalRuns,
			"pending_eligible":  len(probe.Eligible),
		}, nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

func (s *Server) automationRuns(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	runs, err := s.queries.GetAutomationRuns(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

type configureAutomationRequest struct {
	Enabled       *bool `json:"enabled" binding:"required"`
	GasLimit      int64 `json:"gas_limit" binding:"required"`
	MaxBatchSize  int   `json:"max_batch_size" binding:"required"`
	CheckInterval int64 `json:"check_interval"`
}

func (s *Server) configureAutomation(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	var req configureAutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, e.ConfigureAutomation(actor, *req.Enabled, req.GasLimit, req.MaxBatchSize, req.CheckInterval, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type pauseRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

func (s *Server) pauseAutomation(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, e.PauseAutomation(actor, *req.Paused, now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- admin ---

type recoverRequest struct {
	To     string `json:"to" binding:"required"`
	Symbol string `json:"symbol" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

func (s *Server) recoverAsset(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	var req recoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(req.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to address"})
		return
	}
	to := common.HexToAddress(req.To)

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, e.RecoverAsset(actor, to, req.Symbol, req.Amount, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type testPriceRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Price  int64  `json:"price" binding:"required"`
}

func (s *Server) setTestPrice(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	var req testPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, e.SetTestPrice(actor, req.Symbol, req.Price, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type oracleModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) setOracleMode(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	var req oracleModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var mode oracle.Mode
	switch req.Mode {
	case "feed":
		mode = oracle.ModeFeed
	case "test":
		mode = oracle.ModeTest
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be feed or test"})
		return
	}

	_, err := s.loop.Do(c.Request.Context(), func(e *core.Engine, now time.Time) (any, error) {
		return nil, e.SetOracleMode(actor, mode, idemKey(c), now)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) integrity(c *gin.Context) {
	report, err := s.queries.VerifyIntegrity(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// --- helpers ---

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
