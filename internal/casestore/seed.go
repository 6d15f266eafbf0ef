package casestore

import (
	"time"

	"github.com/myrjola/fraudalert/internal/models"
	"github.com/shopspring/decimal"
)

type sampleCase struct {
	name, securityID, cardEnding, merchant, amount, at, category, source, question, answer string
}

// Illustrative data only, none of it refers to real customers or cards.
var sampleCases = []sampleCase{
	{"John", "12345", "4242", "ABC Industry", "1250.00", "2025-11-26 14:30:00",
		"e-commerce", "alibaba.com", "What is your favorite color?", "blue"},
	{"Sarah", "67890", "8888", "Luxury Watches Ltd", "5499.99", "2025-11-26 09:15:00",
		"retail", "luxurywatches.ru", "What city were you born in?", "chicago"},
	{"Michael", "11111", "1234", "Crypto Exchange Pro", "9999.00", "2025-11-25 23:45:00",
		"cryptocurrency", "cryptoexchange.xyz", "What is your pet's name?", "max"},
	{"Emily", "22222", "5678", "Global Electronics Store", "2899.99", "2025-11-27 10:20:00",
		"electronics", "globalelectronics.cn", "What is your mother's maiden name?", "smith"},
	{"David", "33333", "9012", "Premium Gaming Store", "799.00", "2025-11-27 15:45:00",
		"gaming", "premiumgaming.net", "What was your first car?", "honda"},
	{"Jessica", "44444", "3456", "Fashion Boutique Online", "1599.50", "2025-11-27 12:00:00",
		"fashion", "fashionboutique.fr", "What is your favorite food?", "pizza"},
	{"Robert", "55555", "7890", "Tech Gadgets Pro", "3499.00", "2025-11-27 08:30:00",
		"technology", "techgadgets.de", "What is your favorite movie?", "inception"},
	{"Amanda", "66666", "2468", "Travel Booking Agency", "4250.00", "2025-11-26 18:00:00",
		"travel", "travelbooking.uk", "What is your favorite book?", "gatsby"},
	{"James", "77777", "1357", "Sports Equipment Store", "899.99", "2025-11-27 11:15:00",
		"sports", "sportsequipment.ca", "What is your favorite sport?", "basketball"},
	{"Lisa", "88888", "9753", "Home Decor Emporium", "1750.00", "2025-11-27 13:30:00",
		"home", "homedecor.au", "What is your favorite season?", "summer"},
}

// SampleCases returns the fixed dataset every empty store is seeded with. All cases are pending review.
func SampleCases() []models.FraudCase {
	cases := make([]models.FraudCase, 0, len(sampleCases))
	for _, s := range sampleCases {
		at, err := time.Parse(models.TransactionTimeLayout, s.at)
		if err != nil {
			panic(err)
		}
		cases = append(cases, models.FraudCase{
			CustomerName:        s.name,
			SecurityIdentifier:  s.securityID,
			CardEnding:          s.cardEnding,
			Status:              models.CaseStatusPendingReview,
			TransactionMerchant: s.merchant,
			TransactionAmount:   decimal.RequireFromString(s.amount),
			TransactionTime:     at,
			TransactionCategory: s.category,
			TransactionSource:   s.source,
			SecurityQuestion:    s.question,
			SecurityAnswer:      s.answer,
			Outcome:             nil,
			UpdatedAt:           nil,
		})
	}
	return cases
}
