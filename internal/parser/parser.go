package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/brainquiz/internal/domain"
	"github.com/conorfennell/brainquiz/internal/knol"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	topicPrefix    = "C:"
	imagePrefix    = "I:"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingTopic
	readingImage
)

// ParseMarkdownFile reads a markdown file from the given path and extracts all cards.
func ParseMarkdownFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads Q:/A:/C:/I: blocks from an io.Reader and extracts all cards.
// C: holds the topic and I: an image URI; blocks may span several lines.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)
	var cards []domain.Card
	var currentCard domain.Card
	var currentBlock []string
	currentState := seeking

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.Join(currentBlock, "\n")
		switch currentState {
		case readingQuestion:
			currentCard.Question = content
		case readingAnswer:
			currentCard.Answer = content
		case readingTopic:
			currentCard.Topic = content
		case readingImage:
			currentCard.Image = strings.TrimSpace(content)
		}
		currentBlock = nil
	}

	finishCard := func() {
		flushBlock()
		if currentCard.Question != "" {
			cards = append(cards, currentCard)
		}
		currentCard = domain.Card{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "---" {
			finishCard()
			continue
		}

		prefix, next := linePrefix(line)
		if prefix == "" {
			if currentState != seeking {
				currentBlock = append(currentBlock, line)
			}
			continue
		}

		flushBlock()
		if next == readingQuestion && currentState != seeking { // A new question always starts a new card
			finishCard()
		}
		currentState = next
		currentBlock = append(currentBlock, strings.TrimPrefix(line[len(prefix):], " "))
	}

	finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i := range cards {
		cards[i].Question = strings.TrimSpace(cards[i].Question)
		cards[i].Answer = strings.TrimRight(cards[i].Answer, "\n ")
		cards[i].Topic = strings.TrimSpace(cards[i].Topic)
	}
	return knol.Assign(cards), nil
}

func linePrefix(line string) (string, state) {
	switch {
	case strings.HasPrefix(line, questionPrefix):
		return questionPrefix, readingQuestion
	case strings.HasPrefix(line, answerPrefix):
		return answerPrefix, readingAnswer
	case strings.HasPrefix(line, topicPrefix):
		return topicPrefix, readingTopic
	case strings.HasPrefix(line, imagePrefix):
		return imagePrefix, readingImage
	default:
		return "", seeking
	}
}
