package storage

// schema is the single source of truth for the pipeline's tables.
// price_daily and indicators_daily deliberately carry no write timestamp:
// replaying a run for a past date range must leave them bit-identical.
const schema = `
CREATE TABLE IF NOT EXISTS price_daily (
    market TEXT NOT NULL,
    symbol TEXT NOT NULL,
    date TEXT NOT NULL,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL,
    volume REAL NOT NULL,
    source TEXT NOT NULL,
    PRIMARY KEY (market, symbol, date)
);

CREATE TABLE IF NOT EXISTS indicators_daily (
    market TEXT NOT NULL,
    symbol TEXT NOT NULL,
    date TEXT NOT NULL,
    sma20 REAL,
    sma50 REAL,
    ema12 REAL,
    ema26 REAL,
    rsi14 REAL,
    macd REAL,
    macd_signal REAL,
    macd_hist REAL,
    bb_upper REAL,
    bb_mid REAL,
    bb_lower REAL,
    PRIMARY KEY (market, symbol, date)
);

CREATE TABLE IF NOT EXISTS news_items (
    market TEXT NOT NULL,
    symbol TEXT NOT NULL,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    published_at TEXT,
    source TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (symbol, url)
);

CREATE TABLE IF NOT EXISTS financials (
    market TEXT NOT NULL,
    symbol TEXT NOT NULL,
    period TEXT NOT NULL,
    report_type TEXT NOT NULL,
    raw_payload TEXT NOT NULL,
    source TEXT NOT NULL,
    fetched_at TEXT NOT NULL,
    PRIMARY KEY (market, symbol, report_type, period)
);

CREATE TABLE IF NOT EXISTS sentiment_items (
    market TEXT NOT NULL,
    symbol TEXT NOT NULL,
    source TEXT NOT NULL,
    text TEXT NOT NULL,
    url TEXT NOT NULL,
    score REAL NOT NULL DEFAULT 0,
    captured_at TEXT,
    created_at TEXT NOT NULL,
    PRIMARY KEY (market, symbol, url)
);

CREATE TABLE IF NOT EXISTS reports (
    market TEXT NOT NULL,
    symbol TEXT NOT NULL,
    report_date TEXT NOT NULL,
    price REAL NOT NULL,
    ai_summary TEXT NOT NULL,
    ai_prediction TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (market, symbol, report_date)
);

CREATE TABLE IF NOT EXISTS accuracy (
    market TEXT NOT NULL,
    symbol TEXT NOT NULL,
    report_date TEXT NOT NULL,
    report_price REAL NOT NULL,
    compare_date TEXT NOT NULL,
    compare_price REAL NOT NULL,
    ai_prediction TEXT NOT NULL,
    actual_direction TEXT NOT NULL,
    hit INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (market, symbol, report_date)
);
`
