package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/nadermx/heroesandmore/internal/api/handlers"
	"github.com/nadermx/heroesandmore/internal/models"
	"github.com/nadermx/heroesandmore/internal/services"
	"github.com/nadermx/heroesandmore/internal/utils"
)

func TestRestBidHandler_PlaceBid_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc)

	bidderID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/listing/:id/bid", withUser(bidderID), handler.PlaceBid)

	listingID := utils.NewSixID()
	result := &services.BidResult{
		Bid:          &models.Bid{ID: utils.NewSixID(), ListingID: listingID, BidderID: bidderID, Amount: 1500},
		WinnerID:     bidderID,
		CurrentPrice: 1500,
	}
	mockBidSvc.On("PlaceBid", mock.Anything, listingID, bidderID, int64(1500), (*int64)(nil), mock.Anything).Return(result, nil)

	body, _ := json.Marshal(map[string]interface{}{"amount": 1500})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/bid", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var respBody services.BidResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, int64(1500), respBody.CurrentPrice)
	mockBidSvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_WithCeiling(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc)

	bidderID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/listing/:id/bid", withUser(bidderID), handler.PlaceBid)

	listingID := utils.NewSixID()
	mockBidSvc.On("PlaceBid", mock.Anything, listingID, bidderID, int64(1000), mock.MatchedBy(func(max *int64) bool {
		return max != nil && *max == 5000
	}), mock.Anything).Return(&services.BidResult{CurrentPrice: 1000}, nil)

	body, _ := json.Marshal(map[string]interface{}{"amount": 1000, "max_amount": 5000})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/bid", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockBidSvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_TooLow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc)

	bidderID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/listing/:id/bid", withUser(bidderID), handler.PlaceBid)

	listingID := utils.NewSixID()
	mockBidSvc.On("PlaceBid", mock.Anything, listingID, bidderID, int64(100), (*int64)(nil), mock.Anything).Return(nil, services.ErrBidTooLow)

	body, _ := json.Marshal(map[string]interface{}{"amount": 100})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/bid", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	mockBidSvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_AuctionNotActive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc)

	bidderID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/listing/:id/bid", withUser(bidderID), handler.PlaceBid)

	listingID := utils.NewSixID()
	mockBidSvc.On("PlaceBid", mock.Anything, listingID, bidderID, int64(1500), (*int64)(nil), mock.Anything).Return(nil, services.ErrAuctionNotActive)

	body, _ := json.Marshal(map[string]interface{}{"amount": 1500})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/bid", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockBidSvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_SelfBidding(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc)

	sellerID := utils.NewSixID()
	r := gin.New()
	r.POST("/v1/listing/:id/bid", withUser(sellerID), handler.PlaceBid)

	listingID := utils.NewSixID()
	mockBidSvc.On("PlaceBid", mock.Anything, listingID, sellerID, int64(1500), (*int64)(nil), mock.Anything).Return(nil, services.ErrSelfBidding)

	body, _ := json.Marshal(map[string]interface{}{"amount": 1500})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/bid", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockBidSvc.AssertExpectations(t)
}

func TestRestBidHandler_PlaceBid_Unauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc)

	r := gin.New()
	r.POST("/v1/listing/:id/bid", handler.PlaceBid)

	body, _ := json.Marshal(map[string]interface{}{"amount": 1500})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+utils.NewSixID().String()+"/bid", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockBidSvc.AssertNotCalled(t, "PlaceBid")
}

func TestRestBidHandler_ListBids_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockBidSvc := new(MockBidService)
	handler := handlers.NewRestBidHandler(mockBidSvc)

	r := gin.New()
	r.GET("/v1/listing/:id/bid", handler.ListBids)

	listingID := utils.NewSixID()
	bids := []models.Bid{
		{ID: utils.NewSixID(), ListingID: listingID, Amount: 2000},
		{ID: utils.NewSixID(), ListingID: listingID, Amount: 1500},
	}
	mockBidSvc.On("ListBids", mock.Anything, listingID).Return(bids, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/listing/"+listingID.String()+"/bid", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody []models.Bid
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Len(t, respBody, 2)
	mockBidSvc.AssertExpectations(t)
}
