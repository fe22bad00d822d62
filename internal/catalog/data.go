package catalog

import "github.com/finsim/ledger-engine/internal/model"

var defaultChallenges = []model.Challenge{
	{ID: 1, Kind: model.KindFirstTrade, Title: "First Trade", Goal: "Complete your first stock purchase",
		Target: 1, RewardPoints: 50, Difficulty: "EASY"},
	{ID: 2, Kind: model.KindPortfolioBuilder, Title: "Portfolio Builder", Goal: "Hold at least 5 different stocks",
		Target: 5, RewardPoints: 100, Difficulty: "MEDIUM", DurationDays: 30},
	{ID: 3, Kind: model.KindConsistency, Title: "Consistent Investor", Goal: "Complete 10 trades",
		Target: 10, RewardPoints: 150, Difficulty: "MEDIUM", DurationDays: 30},
	{ID: 4, Kind: model.KindKnowledge, Title: "Knowledge Seeker", Goal: "Complete 5 lessons",
		Target: 5, RewardPoints: 100, Difficulty: "EASY"},
	{ID: 5, Kind: model.KindQuiz, Title: "Quiz Master", Goal: "Pass 3 quizzes",
		Target: 3, RewardPoints: 200, Difficulty: "MEDIUM"},
	{ID: 6, Kind: model.KindProfit, Title: "Profit Maker", Goal: "Achieve 10% portfolio growth",
		Target: 100, RewardPoints: 300, Difficulty: "HARD", DurationDays: 60},
}

var defaultLessons = []model.Lesson{
	{ID: 1, Title: "What is the Stock Market?", Level: "BEGINNER"},
	{ID: 2, Title: "Understanding Stocks & Shares", Level: "BEGINNER"},
	{ID: 3, Title: "How to Buy & Sell Stocks", Level: "BEGINNER"},
	{ID: 4, Title: "Reading Stock Quotes", Level: "BEGINNER"},
	{ID: 5, Title: "Risk & Return Basics", Level: "BEGINNER"},
	{ID: 6, Title: "Mutual Funds 101", Level: "BEGINNER"},
	{ID: 7, Title: "Index Funds & ETFs", Level: "BEGINNER"},
	{ID: 8, Title: "Bonds & Fixed Income", Level: "BEGINNER"},
	{ID: 9, Title: "SIP (Systematic Investment Plan)", Level: "BEGINNER"},
	{ID: 10, Title: "Emergency Fund & Goal Setting", Level: "BEGINNER"},
	{ID: 11, Title: "Introduction to Technical Analysis", Level: "INTERMEDIATE"},
	{ID: 12, Title: "Candlestick Patterns", Level: "INTERMEDIATE"},
	{ID: 13, Title: "Technical Indicators", Level: "INTERMEDIATE"},
	{ID: 14, Title: "Fundamental Analysis Basics", Level: "INTERMEDIATE"},
	{ID: 15, Title: "Portfolio Construction", Level: "INTERMEDIATE"},
}

// question builds a question whose options get IDs questionID*10+n.
// correct is the zero-based index of the right answer.
func question(id int64, prompt string, correct int, options ...string) model.Question {
	q := model.Question{ID: id, Prompt: prompt}
	for i, text := range options {
		q.Options = append(q.Options, model.Option{
			ID:      id*10 + int64(i+1),
			Text:    text,
			Correct: i == correct,
		})
	}
	return q
}

var defaultQuizzes = []model.Quiz{
	{
		ID: 1, Title: "Stock Market Basics Quiz", Lesson: "What is the Stock Market?", PassingScore: 4,
		Questions: []model.Question{
			question(101, "Which is Asia's oldest stock exchange?", 1,
				"NSE (established 1992)", "BSE (established 1875)", "Tokyo Stock Exchange", "Shanghai Stock Exchange"),
			question(102, "In the Primary Market (IPO), where does the money raised go?", 1,
				"To existing shareholders", "Directly to the company", "To stockbrokers", "To SEBI"),
			question(103, "What is the benchmark index of NSE?", 1,
				"SENSEX", "NIFTY 50", "BSE 500", "NIFTY Bank"),
			question(104, "What is SEBI's main role?", 2,
				"Lending money to companies", "Setting stock prices",
				"Protecting investors and regulating markets", "Trading stocks on behalf of government"),
			question(105, "What are the regular trading hours?", 1,
				"9:00 AM - 4:00 PM", "9:15 AM - 3:30 PM", "10:00 AM - 3:00 PM", "9:30 AM - 4:30 PM"),
			question(106, "In the Secondary Market, does the company receive money when shares are traded?", 2,
				"Yes, company gets a commission", "Yes, company gets the full amount", "No, company gets nothing", "Company gets 50%"),
		},
	},
	{
		ID: 2, Title: "Stocks & Shares Quiz", Lesson: "Understanding Stocks & Shares", PassingScore: 4,
		Questions: []model.Question{
			question(201, "Which type of shares have voting rights?", 1,
				"Preference Shares only", "Equity Shares only", "Both equally", "Neither has voting rights"),
			question(202, "What is the formula for Market Cap?", 1,
				"Price × Volume", "Price × Total Shares Outstanding", "Revenue × P/E Ratio", "Profit × Number of Investors"),
			question(203, "What is the Market Cap threshold for Large Cap stocks?", 1,
				"> ₹10,000 crore", "> ₹20,000 crore", "> ₹50,000 crore", "> ₹1,00,000 crore"),
			question(204, "What type of dividend do Preference Shares have?", 1,
				"Variable based on profits", "Fixed rate dividend", "No dividend", "Same as equity shares"),
			question(205, "What is the 'Spread' in a stock quote?", 1,
				"The day's price range", "Ask Price minus Bid Price", "Total shares traded", "Commission charged"),
			question(206, "What are the three ways to make money from stocks?", 2,
				"Trading, Options, Futures", "Dividends, Interest, Rent",
				"Capital Appreciation, Dividends, Bonus Shares", "Day Trading, Swing Trading, Position Trading"),
		},
	},
	{
		ID: 3, Title: "Buying & Selling Stocks Quiz", Lesson: "How to Buy & Sell Stocks", PassingScore: 4,
		Questions: []model.Question{
			question(301, "How many accounts do you need to trade stocks?", 2,
				"1 account", "2 accounts", "3 accounts", "4 accounts"),
			question(302, "What is a Demat Account used for?", 1,
				"Placing buy/sell orders", "Holding shares electronically",
				"Storing physical share certificates", "Transferring money to broker"),
			question(303, "What is the settlement period for equity trades?", 1,
				"T+0 (same day)", "T+1 (next working day)", "T+2 (two days)", "T+3 (three days)"),
			question(304, "When should you use a Market Order?", 1,
				"When you have a target price", "When you must buy/sell immediately",
				"When you want to wait for better price", "Only for large orders"),
			question(305, "What is the purpose of a Stop-Loss order?", 1,
				"To guarantee profits", "To limit losses and protect profits", "To get better prices", "To avoid brokerage charges"),
			question(306, "What is the approximate STT on delivery trades?", 1,
				"0.01%", "0.1%", "1%", "0.5%"),
		},
	},
}
